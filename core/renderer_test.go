// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/koru3d/lumen/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sceneFixture struct {
	ctx          *DeviceContext
	dev          *gfxtest.Device
	cube, quad   MeshHandle
	stone, glass MaterialHandle
}

func newSceneFixture(t *testing.T, maxObjects int) *sceneFixture {
	ctx, backend, _ := newTestContext(t, func(cfg *Configuration, _ *gfxtest.Backend) {
		cfg.Renderer.MaxObjects = maxObjects
	})
	f := &sceneFixture{ctx: ctx, dev: backend.Device}
	var err error
	f.stone, err = ctx.Materials().Create("materials/stone.matx")
	require.NoError(t, err)
	f.glass, err = ctx.Materials().Create("materials/glass.matx")
	require.NoError(t, err)
	f.cube, err = ctx.Meshes().Create("meshes/cube.mesh")
	require.NoError(t, err)
	f.quad, err = ctx.Meshes().Create("meshes/quad.mesh")
	require.NoError(t, err)
	return f
}

// frameOps returns the commands recorded into the current frame.
func (f *sceneFixture) frameOps(t *testing.T) []gfxtest.Command {
	obj, ok := f.dev.CommandBuffer(f.ctx.CurrentFrame().Commands)
	require.True(t, ok)
	return obj.Commands
}

func filterOps(cmds []gfxtest.Command, op string) []gfxtest.Command {
	var out []gfxtest.Command
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestRendererFlush(t *testing.T) {
	f := newSceneFixture(t, 100)
	r := f.ctx.Renderer()
	unknown := MeshHandle(gfx.Handle{Index: 99, Gen: 1})

	r.Submit(
		Renderable{Mesh: f.cube, Material: f.glass, Transform: glm.Translate3D(0, 0, 1)},
		Renderable{Mesh: f.cube, Material: f.stone, Transform: glm.Ident4()},
		Renderable{Mesh: f.quad, Material: f.stone, Transform: glm.Scale3D(2, 2, 2)},
		Renderable{Mesh: unknown, Material: f.stone, Transform: glm.Ident4()},
	)
	assert.Equal(t, 4, r.Queued())

	ok, err := f.ctx.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	viewProj := glm.Perspective(glm.DegToRad(60), 4.0/3.0, 0.1, 100)
	require.NoError(t, r.Flush(viewProj))
	assert.Equal(t, 0, r.Queued())

	stats := r.Stats()
	assert.Equal(t, 3, stats.Draws)
	assert.Equal(t, 0, stats.Dropped)
	assert.Equal(t, 2, stats.PipelineBinds)
	assert.Equal(t, 2, stats.TextureBinds)

	cmds := f.frameOps(t)
	require.NotEmpty(t, cmds)
	assert.Equal(t, gfxtest.OpBeginRenderPass, cmds[0].Op)
	assert.Equal(t, gfxtest.OpEndRenderPass, cmds[len(cmds)-1].Op)
	begin := cmds[0].Detail.(gfx.RenderPassBegin)
	assert.Equal(t, f.ctx.Swapchain().RenderPass(), begin.RenderPass)
	assert.Equal(t, f.ctx.Swapchain().Framebuffer(f.ctx.Frames().Image()), begin.Framebuffer)
	assert.Equal(t, float32(1), begin.ClearDepth)

	// stone sorts before glass, the unknown mesh is skipped
	var draws []gfxtest.DrawIndexed
	for _, c := range filterOps(cmds, gfxtest.OpDrawIndexed) {
		draws = append(draws, c.Detail.(gfxtest.DrawIndexed))
	}
	require.Len(t, draws, 3)
	assert.Equal(t, []uint32{36, 6, 36}, []uint32{draws[0].IndexCount, draws[1].IndexCount, draws[2].IndexCount})
	assert.Equal(t, []uint32{0, 1, 3}, []uint32{draws[0].FirstInstance, draws[1].FirstInstance, draws[2].FirstInstance})

	binds := filterOps(cmds, gfxtest.OpBindSets)
	require.Len(t, binds, 4)
	global := binds[0].Detail.(gfxtest.BindSets)
	assert.Equal(t, uint32(GlobalSet), global.First)
	assert.Len(t, global.Sets, 2)
	assert.Equal(t, []uint32{0}, global.DynamicOffsets)
	textures := binds[1].Detail.(gfxtest.BindSets)
	assert.Equal(t, uint32(TextureSet), textures.First)
	stone, _ := f.ctx.Materials().Get(f.stone)
	assert.Equal(t, []gfx.DescriptorSet{stone.TextureSet}, textures.Sets)

	// cube, quad, then cube again under the glass pipeline
	assert.Len(t, filterOps(cmds, gfxtest.OpBindVertexBuffer), 3)

	ubo, ok := f.dev.Buffer(r.uniforms)
	require.True(t, ok)
	assert.Equal(t, model.MatrixBytes(viewProj), ubo.Data[:64])
	objects, ok := f.dev.Buffer(r.objects[0])
	require.True(t, ok)
	assert.Equal(t, model.MatrixBytes(glm.Ident4()), objects.Data[:64])
	assert.Equal(t, model.MatrixBytes(glm.Scale3D(2, 2, 2)), objects.Data[64:128])

	require.NoError(t, f.ctx.EndFrame())
	assert.Empty(t, f.dev.Violations)
}

func TestRendererUsesFrameSlices(t *testing.T) {
	f := newSceneFixture(t, 100)
	r := f.ctx.Renderer()

	for frame := 0; frame < 2; frame++ {
		r.Submit(Renderable{Mesh: f.cube, Material: f.stone, Transform: glm.Ident4()})
		ok, err := f.ctx.BeginFrame()
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.Flush(glm.Ident4()))

		binds := filterOps(f.frameOps(t), gfxtest.OpBindSets)
		require.NotEmpty(t, binds)
		global := binds[0].Detail.(gfxtest.BindSets)
		assert.Equal(t, []uint32{uint32(r.uniformStride) * uint32(frame)}, global.DynamicOffsets)
		require.NoError(t, f.ctx.EndFrame())
	}
	assert.Equal(t, uint64(0), r.uniformStride%256)
}

func TestRendererDropsOverflow(t *testing.T) {
	f := newSceneFixture(t, 2)
	r := f.ctx.Renderer()
	for i := 0; i < 3; i++ {
		r.Submit(Renderable{Mesh: f.quad, Material: f.stone, Transform: glm.Ident4()})
	}

	ok, err := f.ctx.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Flush(glm.Ident4()))
	assert.Equal(t, 2, r.Stats().Draws)
	assert.Equal(t, 1, r.Stats().Dropped)
	assert.Equal(t, 1, r.Stats().PipelineBinds)
	require.NoError(t, f.ctx.EndFrame())
}

func TestRendererEmptyFlush(t *testing.T) {
	f := newSceneFixture(t, 10)
	r := f.ctx.Renderer()

	ok, err := f.ctx.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Flush(glm.Ident4()))
	ops := filterOps(f.frameOps(t), gfxtest.OpDrawIndexed)
	assert.Empty(t, ops)
	assert.Len(t, filterOps(f.frameOps(t), gfxtest.OpBeginRenderPass), 1)
	require.NoError(t, f.ctx.EndFrame())
}

func TestRendererFlushOutsideFrame(t *testing.T) {
	f := newSceneFixture(t, 10)
	assert.Error(t, f.ctx.Renderer().Flush(glm.Ident4()))
}
