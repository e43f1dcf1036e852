// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/model"
	"github.com/sirupsen/logrus"
)

// MeshHandle refers to a mesh held by a MeshCache.
type MeshHandle gfx.Handle

// Mesh is an indexed triangle list in device local buffers. Vertices are
// always in the model.Vertex layout.
type Mesh struct {
	ID          uuid.UUID
	Path        string
	Vertices    gfx.Buffer
	Indices     gfx.Buffer
	VertexCount uint32
	IndexCount  uint32
}

// MeshCache loads mesh assets onto the device, once per path.
type MeshCache struct {
	device gfx.Device
	source asset.Source
	frames FrameResources
	log    logrus.FieldLogger

	meshes gfx.Arena[Mesh]
	byPath map[string]MeshHandle
}

// NewMeshCache creates an empty cache.
func NewMeshCache(device gfx.Device, source asset.Source, frames FrameResources, logger logrus.FieldLogger) *MeshCache {
	return &MeshCache{
		device: device,
		source: source,
		frames: frames,
		log:    componentLogger(logger, "meshes"),
		byPath: make(map[string]MeshHandle),
	}
}

// Create returns the mesh for path, uploading it on first request.
func (c *MeshCache) Create(path string) (MeshHandle, error) {
	if h, ok := c.byPath[path]; ok {
		return h, nil
	}
	log := c.log.WithField("path", path)

	a, err := asset.Open(c.source, path)
	if err != nil {
		return MeshHandle{}, errors.Wrapf(err, "load mesh %s", path)
	}
	info, err := asset.ParseMeshInfo(a)
	if err != nil {
		return MeshHandle{}, errors.Wrapf(err, "mesh %s", path)
	}
	vbo := make([]byte, info.VertexBufferSize)
	ibo := make([]byte, info.IndexBufferSize)
	if err := asset.UnpackMesh(info, a.Binary, vbo, ibo); err != nil {
		return MeshHandle{}, errors.Wrapf(err, "unpack mesh %s", path)
	}
	if info.Format == asset.FormatPosNorUV {
		if vbo, err = model.WidenPosNorUV(vbo); err != nil {
			return MeshHandle{}, errors.Wrapf(err, "mesh %s", path)
		}
	}
	log.WithField("format", info.Format).Debug("Mesh decoded")
	return c.CreateFromData(path, vbo, ibo)
}

// CreateFromData uploads an already decoded mesh under key. vbo must be in
// the model.Vertex layout and ibo hold 32 bit indices.
func (c *MeshCache) CreateFromData(key string, vbo, ibo []byte) (MeshHandle, error) {
	if h, ok := c.byPath[key]; ok {
		return h, nil
	}
	if len(vbo) == 0 || len(vbo)%model.VertexSize != 0 || len(ibo) == 0 || len(ibo)%4 != 0 {
		return MeshHandle{}, errors.Newf("mesh %s: %d vertex bytes and %d index bytes", key, len(vbo), len(ibo))
	}

	vertices, err := uploadBuffer(c.device, c.frames, gfx.BufferVertex, vbo)
	if err != nil {
		c.log.WithField("path", key).WithError(err).Error("Vertex upload failed")
		return MeshHandle{}, errors.Wrapf(err, "upload vertices of %s", key)
	}
	indices, err := uploadBuffer(c.device, c.frames, gfx.BufferIndex, ibo)
	if err != nil {
		c.device.DestroyBuffer(vertices)
		c.log.WithField("path", key).WithError(err).Error("Index upload failed")
		return MeshHandle{}, errors.Wrapf(err, "upload indices of %s", key)
	}

	h := MeshHandle(c.meshes.Insert(Mesh{
		ID:          uuid.New(),
		Path:        key,
		Vertices:    vertices,
		Indices:     indices,
		VertexCount: uint32(len(vbo) / model.VertexSize),
		IndexCount:  uint32(len(ibo) / 4),
	}))
	c.byPath[key] = h
	c.log.WithFields(logrus.Fields{"path": key, "indices": len(ibo) / 4}).Debug("Mesh created")
	return h, nil
}

// Get returns the mesh behind h.
func (c *MeshCache) Get(h MeshHandle) (Mesh, bool) {
	return c.meshes.Get(gfx.Handle(h))
}

// Lookup returns the handle of an already loaded path.
func (c *MeshCache) Lookup(path string) (MeshHandle, bool) {
	h, ok := c.byPath[path]
	return h, ok
}

// Destroy evicts a mesh. Its buffers are destroyed once every frame
// submitted so far has completed.
func (c *MeshCache) Destroy(h MeshHandle) error {
	m, ok := c.meshes.Remove(gfx.Handle(h))
	if !ok {
		return errors.Wrapf(ErrUnknownResource, "mesh %s", gfx.Handle(h))
	}
	delete(c.byPath, m.Path)
	c.frames.Deletions().Push(DeleteBuffer(m.Vertices), DeleteBuffer(m.Indices))
	return nil
}

// Len returns the number of meshes held.
func (c *MeshCache) Len() int {
	return c.meshes.Len()
}

// DestroyAll destroys every mesh immediately. The device must be idle.
func (c *MeshCache) DestroyAll() {
	c.meshes.Each(func(h gfx.Handle, m Mesh) {
		c.device.DestroyBuffer(m.Indices)
		c.device.DestroyBuffer(m.Vertices)
		c.meshes.Remove(h)
	})
	c.byPath = make(map[string]MeshHandle)
}
