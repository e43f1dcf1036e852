// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sort"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/model"
	"github.com/sirupsen/logrus"
)

// Renderable is one mesh drawn with one material.
type Renderable struct {
	Mesh      MeshHandle
	Material  MaterialHandle
	Transform glm.Mat4
}

// RendererDeps are the objects a Renderer draws with.
type RendererDeps struct {
	Frames    *FrameSynchronizer
	Swapchain *SwapchainManager
	Layouts   *DescriptorLayoutCache
	Meshes    *MeshCache
	Materials *MaterialCache
}

// RenderStats counts what the last Flush did.
type RenderStats struct {
	Draws         int
	Dropped       int
	PipelineBinds int
	TextureBinds  int
}

// Renderer draws submitted renderables in a single forward pass.
type Renderer struct {
	device gfx.Device
	deps   RendererDeps
	log    logrus.FieldLogger

	clearColor [4]float32
	maxObjects int

	uniformStride uint64
	uniforms      gfx.Buffer
	objects       []gfx.Buffer

	queue []Renderable
	stats RenderStats
}

// NewRenderer creates the uniform buffer, with one aligned slice per frame
// in flight, and one object buffer per frame.
func NewRenderer(device gfx.Device, deps RendererDeps, cfg RendererConfiguration, logger logrus.FieldLogger) (*Renderer, error) {
	r := &Renderer{
		device:     device,
		deps:       deps,
		log:        componentLogger(logger, "renderer"),
		clearColor: cfg.ClearColor,
		maxObjects: cfg.MaxObjects,
	}
	if r.maxObjects <= 0 {
		r.maxObjects = DefaultConfiguration().Renderer.MaxObjects
	}
	r.uniformStride = AlignedSize(uint64(model.UniformSize), device.Adapter().MinUniformAlignment)

	frames := deps.Frames.Len()
	var err error
	r.uniforms, err = device.CreateBuffer(gfx.BufferInfo{
		Size:   r.uniformStride * uint64(frames),
		Usage:  gfx.BufferUniform,
		Memory: gfx.MemoryHostVisible,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create uniform buffer")
	}
	for i := 0; i < frames; i++ {
		buf, err := device.CreateBuffer(gfx.BufferInfo{
			Size:   uint64(r.maxObjects * model.ObjectDataSize),
			Usage:  gfx.BufferStorage,
			Memory: gfx.MemoryHostVisible,
		})
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "create object buffer %d", i)
		}
		r.objects = append(r.objects, buf)
	}
	return r, nil
}

// Submit queues a renderable for the next Flush.
func (r *Renderer) Submit(items ...Renderable) {
	r.queue = append(r.queue, items...)
}

// Queued returns the number of renderables waiting for Flush.
func (r *Renderer) Queued() int {
	return len(r.queue)
}

// Stats returns the counters of the last Flush.
func (r *Renderer) Stats() RenderStats {
	return r.stats
}

// Flush records the render pass for everything submitted since the last
// Flush into the current frame. It must be called between BeginFrame and
// EndFrame.
func (r *Renderer) Flush(viewProjection glm.Mat4) error {
	frames := r.deps.Frames
	if !frames.Recording() {
		return errors.New("Flush called outside of a frame")
	}
	queue := r.queue
	r.queue = r.queue[:0]
	r.stats = RenderStats{}

	if len(queue) > r.maxObjects {
		r.stats.Dropped = len(queue) - r.maxObjects
		r.log.WithField("dropped", r.stats.Dropped).Warn("More renderables than object slots")
		queue = queue[:r.maxObjects]
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Material.Index < queue[j].Material.Index
	})

	current := frames.Current()
	frame := frames.CurrentFrame()
	uniformOffset := r.uniformStride * uint64(current)
	if err := r.device.WriteBuffer(r.uniforms, uniformOffset, model.MatrixBytes(viewProjection)); err != nil {
		return errors.Wrap(err, "write uniforms")
	}
	transforms := make([]glm.Mat4, len(queue))
	for i, item := range queue {
		transforms[i] = item.Transform
	}
	if len(transforms) > 0 {
		if err := r.device.WriteBuffer(r.objects[current], 0, model.MatrixBytes(transforms...)); err != nil {
			return errors.Wrap(err, "write object data")
		}
	}

	builder := NewDescriptorBuilder(r.device, r.deps.Layouts, frame.Descriptors)
	global, _, err := builder.
		BindBuffer(0, r.uniforms, 0, uint64(model.UniformSize), gfx.DescriptorUniformBufferDynamic, gfx.StageVertex).
		Build()
	if err != nil {
		return errors.Wrap(err, "global descriptor set")
	}
	objects, _, err := builder.
		BindBuffer(0, r.objects[current], 0, uint64(r.maxObjects*model.ObjectDataSize), gfx.DescriptorStorageBuffer, gfx.StageVertex).
		Build()
	if err != nil {
		return errors.Wrap(err, "object descriptor set")
	}

	sc := r.deps.Swapchain
	cb := frame.Commands
	r.device.CmdBeginRenderPass(cb, gfx.RenderPassBegin{
		RenderPass:  sc.RenderPass(),
		Framebuffer: sc.Framebuffer(frames.Image()),
		Extent:      sc.Extent(),
		ClearColor:  r.clearColor,
		ClearDepth:  1,
	})
	r.device.CmdSetViewport(cb, sc.Viewport())
	r.device.CmdSetScissor(cb, sc.Extent())

	var (
		pipeline gfx.Pipeline
		textures gfx.DescriptorSet
		mesh     MeshHandle
	)
	for i, item := range queue {
		mat, ok := r.deps.Materials.Get(item.Material)
		if !ok {
			r.log.WithField("material", gfx.Handle(item.Material)).Debug("Skipping renderable with unknown material")
			continue
		}
		tmpl, _ := r.deps.Materials.Template(mat.Template)
		m, ok := r.deps.Meshes.Get(item.Mesh)
		if !ok {
			r.log.WithField("mesh", gfx.Handle(item.Mesh)).Debug("Skipping renderable with unknown mesh")
			continue
		}

		if tmpl.Pipeline != pipeline {
			pipeline = tmpl.Pipeline
			textures = gfx.DescriptorSet{}
			r.device.CmdBindPipeline(cb, pipeline)
			r.device.CmdBindDescriptorSets(cb, tmpl.Layout, GlobalSet,
				[]gfx.DescriptorSet{global, objects}, []uint32{uint32(uniformOffset)})
			r.stats.PipelineBinds++
		}
		if gfx.Handle(mat.TextureSet).Valid() && mat.TextureSet != textures {
			textures = mat.TextureSet
			r.device.CmdBindDescriptorSets(cb, tmpl.Layout, TextureSet, []gfx.DescriptorSet{textures}, nil)
			r.stats.TextureBinds++
		}
		if item.Mesh != mesh {
			mesh = item.Mesh
			r.device.CmdBindVertexBuffer(cb, m.Vertices, 0)
			r.device.CmdBindIndexBuffer(cb, m.Indices, 0, gfx.IndexUint32)
		}
		r.device.CmdDrawIndexed(cb, m.IndexCount, 1, 0, 0, uint32(i))
		r.stats.Draws++
	}
	r.device.CmdEndRenderPass(cb)
	return nil
}

// Destroy destroys the renderer's buffers. The device must be idle.
func (r *Renderer) Destroy() {
	for _, buf := range r.objects {
		r.device.DestroyBuffer(buf)
	}
	r.objects = nil
	if gfx.Handle(r.uniforms).Valid() {
		r.device.DestroyBuffer(r.uniforms)
		r.uniforms = gfx.Buffer{}
	}
}
