// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTarget struct {
	pass    gfx.RenderPass
	samples gfx.SampleCount
}

func (f fixedTarget) RenderPass() gfx.RenderPass { return f.pass }
func (f fixedTarget) Samples() gfx.SampleCount   { return f.samples }

type materialFixture struct {
	dev       *gfxtest.Device
	textures  *TextureCache
	layouts   *DescriptorLayoutCache
	materials *MaterialCache
}

func newMaterialFixture(t *testing.T) materialFixture {
	dev := gfxtest.NewDevice()
	logger := nullLogger()
	source := testSource(t)
	frames := newDirectFrames(t, dev)
	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{ColorFormat: gfx.FormatBGRA8SRGB, Samples: gfx.Samples4})
	require.NoError(t, err)

	f := materialFixture{
		dev:      dev,
		textures: NewTextureCache(dev, source, frames, logger),
		layouts:  NewDescriptorLayoutCache(dev, logger),
	}
	f.materials = NewMaterialCache(dev, MaterialCacheDeps{
		Source:          source,
		Layouts:         f.layouts,
		PipelineLayouts: NewPipelineLayoutCache(dev, logger),
		Shaders:         NewShaderModuleCache(dev, source, logger),
		Textures:        f.textures,
		Descriptors:     NewDescriptorAllocator(dev, 0, nil, logger),
		Target:          fixedTarget{pass: rp, samples: gfx.Samples4},
	}, logger)
	return f
}

func TestMaterialCacheCreate(t *testing.T) {
	f := newMaterialFixture(t)

	h, err := f.materials.Create("materials/stone.matx")
	require.NoError(t, err)
	mat, ok := f.materials.Get(h)
	require.True(t, ok)
	assert.Equal(t, asset.Opaque, mat.Transparency)
	require.Len(t, mat.Textures, 2)

	// textures bind in sorted role order: albedo, then normal
	albedo, _ := f.textures.Lookup("textures/albedo.texi")
	normal, _ := f.textures.Lookup("textures/normal.texi")
	assert.Equal(t, []TextureHandle{albedo, normal}, mat.Textures)

	set, ok := f.dev.Set(mat.TextureSet)
	require.True(t, ok)
	albedoTex, _ := f.textures.Get(albedo)
	normalTex, _ := f.textures.Get(normal)
	assert.Equal(t, albedoTex.View, set.Writes[0].View)
	assert.Equal(t, normalTex.View, set.Writes[1].View)

	tmpl, ok := f.materials.Template(mat.Template)
	require.True(t, ok)
	assert.Equal(t, set.Layout, tmpl.TextureLayout)
	info, ok := f.dev.Pipeline(tmpl.Pipeline)
	require.True(t, ok)
	assert.Equal(t, gfx.Samples4, info.Samples)
	assert.True(t, info.CullBack)
	assert.True(t, info.DepthTest)
	assert.True(t, info.DepthWrite)
	assert.False(t, info.Blend)
	assert.Equal(t, uint32(44), info.Vertices.Stride)
	assert.Empty(t, f.dev.Violations)
}

func TestMaterialCacheSharesTemplates(t *testing.T) {
	f := newMaterialFixture(t)

	a, err := f.materials.CreateFromTextures("a", []string{"textures/albedo.texi"}, asset.Opaque)
	require.NoError(t, err)
	b, err := f.materials.CreateFromTextures("b", []string{"textures/normal.texi"}, "")
	require.NoError(t, err)
	glass, err := f.materials.Create("materials/glass.matx")
	require.NoError(t, err)

	ma, _ := f.materials.Get(a)
	mb, _ := f.materials.Get(b)
	mg, _ := f.materials.Get(glass)
	assert.Equal(t, ma.Template, mb.Template)
	assert.NotEqual(t, ma.Template, mg.Template)
	assert.NotEqual(t, ma.ID, mb.ID)
	assert.Equal(t, 2, f.materials.Templates())
	assert.Equal(t, 2, f.dev.Created[gfxtest.KindPipeline])
	assert.Equal(t, 2, f.dev.Created[gfxtest.KindShader], "shaders are shared")

	tg, _ := f.materials.Template(mg.Template)
	info, _ := f.dev.Pipeline(tg.Pipeline)
	assert.True(t, info.Blend)
	assert.False(t, info.DepthWrite)
}

func TestMaterialCacheMemoises(t *testing.T) {
	f := newMaterialFixture(t)
	h1, err := f.materials.Create("materials/stone.matx")
	require.NoError(t, err)
	sets := f.dev.Created[gfxtest.KindSet]
	h2, err := f.materials.Create("materials/stone.matx")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, sets, f.dev.Created[gfxtest.KindSet])
	assert.Equal(t, 1, f.materials.Len())
}

func TestMaterialCacheFailureLeavesNoEntry(t *testing.T) {
	f := newMaterialFixture(t)

	_, err := f.materials.CreateFromTextures("broken", []string{"textures/missing.texi"}, asset.Opaque)
	require.Error(t, err)
	_, ok := f.materials.Lookup("broken")
	assert.False(t, ok)

	f.dev.Fail("CreateGraphicsPipeline")
	_, err = f.materials.CreateFromTextures("nopipe", []string{"textures/albedo.texi"}, asset.Opaque)
	require.Error(t, err)
	assert.Equal(t, 0, f.materials.Len())
	assert.Equal(t, 0, f.materials.Templates())

	_, err = f.materials.CreateFromTextures("nopipe", []string{"textures/albedo.texi"}, asset.Opaque)
	require.NoError(t, err)
}

func TestMaterialCacheRebuildPipelines(t *testing.T) {
	f := newMaterialFixture(t)
	h, err := f.materials.Create("materials/stone.matx")
	require.NoError(t, err)
	mat, _ := f.materials.Get(h)
	before, _ := f.materials.Template(mat.Template)

	rp, err := f.dev.CreateRenderPass(gfx.RenderPassInfo{ColorFormat: gfx.FormatRGBA8SRGB, Samples: gfx.Samples4})
	require.NoError(t, err)
	require.NoError(t, f.materials.RebuildPipelines(rp, gfx.Samples4))

	after, ok := f.materials.Template(mat.Template)
	require.True(t, ok, "template handles survive a rebuild")
	assert.NotEqual(t, before.Pipeline, after.Pipeline)
	_, ok = f.dev.Pipeline(before.Pipeline)
	assert.False(t, ok, "old pipeline is destroyed")
	info, _ := f.dev.Pipeline(after.Pipeline)
	assert.Equal(t, rp, info.RenderPass)
	assert.Equal(t, 1, f.dev.Live(gfxtest.KindPipeline))
}

func TestMaterialCacheDestroy(t *testing.T) {
	f := newMaterialFixture(t)
	h, err := f.materials.Create("materials/stone.matx")
	require.NoError(t, err)

	require.NoError(t, f.materials.Destroy(h))
	_, ok := f.materials.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 2, f.textures.Len(), "textures outlive the material")
	assert.Error(t, f.materials.Destroy(h))

	_, err = f.materials.Create("materials/glass.matx")
	require.NoError(t, err)
	f.materials.DestroyAll()
	assert.Equal(t, 0, f.materials.Len())
	assert.Equal(t, 0, f.materials.Templates())
	assert.Equal(t, 0, f.dev.Live(gfxtest.KindPipeline))
}
