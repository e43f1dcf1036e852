// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import "github.com/cockroachdb/errors"

// VertexFormat is the attribute layout of a mesh's vertex buffer.
type VertexFormat string

// Vertex formats. PosNorUV lacks the colour attribute of the engine layout.
const (
	FormatPosColNorUV VertexFormat = "PosColNorUV"
	FormatPosNorUV    VertexFormat = "PosNorUV"
)

// Stride returns the size of one vertex in bytes, zero when unknown.
func (f VertexFormat) Stride() uint64 {
	switch f {
	case FormatPosColNorUV:
		return 11 * 4
	case FormatPosNorUV:
		return 8 * 4
	}
	return 0
}

// MeshInfo describes a mesh asset. The blob is the vertex buffer followed
// by the 32 bit index buffer.
type MeshInfo struct {
	Name             string       `json:"name"`
	Size             uint64       `json:"filesize"`
	VertexBufferSize uint64       `json:"vbosize"`
	IndexBufferSize  uint64       `json:"ibosize"`
	Compression      Compression  `json:"compression"`
	Format           VertexFormat `json:"format"`
}

// VertexCount returns the number of vertices in the vertex buffer.
func (m MeshInfo) VertexCount() uint64 {
	if s := m.Format.Stride(); s != 0 {
		return m.VertexBufferSize / s
	}
	return 0
}

// IndexCount returns the number of indices in the index buffer.
func (m MeshInfo) IndexCount() uint64 {
	return m.IndexBufferSize / 4
}

// PackMesh builds a mesh asset from raw vertex and index buffers.
func PackMesh(info MeshInfo, vbo, ibo []byte) (Asset, error) {
	if info.Format.Stride() == 0 {
		return Asset{}, errors.Newf("mesh %q: unknown vertex format %q", info.Name, info.Format)
	}
	if uint64(len(vbo))%info.Format.Stride() != 0 || len(ibo)%4 != 0 {
		return Asset{}, errors.Newf("mesh %q: buffers of %d and %d bytes are not whole elements", info.Name, len(vbo), len(ibo))
	}
	data := make([]byte, 0, len(vbo)+len(ibo))
	data = append(data, vbo...)
	data = append(data, ibo...)

	blob, mode, err := pack(info.Compression, data)
	if err != nil {
		return Asset{}, err
	}
	info.VertexBufferSize = uint64(len(vbo))
	info.IndexBufferSize = uint64(len(ibo))
	info.Size = uint64(len(data))
	info.Compression = mode
	return newAsset(TypeMesh, info, blob)
}

// ParseMeshInfo reads the description of a mesh asset.
func ParseMeshInfo(a Asset) (MeshInfo, error) {
	if err := a.expect(TypeMesh); err != nil {
		return MeshInfo{}, err
	}
	var info MeshInfo
	if err := a.decodeJSON(&info); err != nil {
		return MeshInfo{}, err
	}
	if info.Format.Stride() == 0 {
		return MeshInfo{}, errors.Wrapf(ErrFormat, "vertex format %q", info.Format)
	}
	info.Compression = info.Compression.normalize()
	return info, nil
}

// UnpackMesh splits the blob into dstVBO and dstIBO, which must be sized
// to the vertex and index buffer sizes of info.
func UnpackMesh(info MeshInfo, blob, dstVBO, dstIBO []byte) error {
	if uint64(len(dstVBO)) != info.VertexBufferSize || uint64(len(dstIBO)) != info.IndexBufferSize {
		return errors.Newf("mesh %q: destinations of %d and %d bytes, want %d and %d",
			info.Name, len(dstVBO), len(dstIBO), info.VertexBufferSize, info.IndexBufferSize)
	}
	data := make([]byte, info.VertexBufferSize+info.IndexBufferSize)
	if err := unpack(info.Compression, blob, data); err != nil {
		return err
	}
	copy(dstVBO, data[:info.VertexBufferSize])
	copy(dstIBO, data[info.VertexBufferSize:])
	return nil
}
