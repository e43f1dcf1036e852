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

// Descriptor sets every material pipeline is laid out with.
const (
	GlobalSet  = 0
	ObjectSet  = 1
	TextureSet = 2
)

// GlobalBindings is set 0: the per frame uniform buffer, bound with a
// dynamic offset selecting the frame's slice.
var GlobalBindings = []DescriptorBinding{
	{Binding: 0, Type: gfx.DescriptorUniformBufferDynamic, Count: 1, Stages: gfx.StageVertex},
}

// ObjectBindings is set 1: the object storage buffer.
var ObjectBindings = []DescriptorBinding{
	{Binding: 0, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageVertex},
}

// TextureBindings returns set 2 for n textures, one sampler per binding.
func TextureBindings(n int) []DescriptorBinding {
	bindings := make([]DescriptorBinding, n)
	for i := range bindings {
		bindings[i] = DescriptorBinding{
			Binding: uint32(i),
			Type:    gfx.DescriptorCombinedImageSampler,
			Count:   1,
			Stages:  gfx.StageFragment,
		}
	}
	return bindings
}

// TemplateHandle refers to a material template.
type TemplateHandle gfx.Handle

// MaterialTemplate is the pipeline shared by every material with the same
// number of textures and transparency.
type MaterialTemplate struct {
	Textures      int
	Transparency  asset.Transparency
	TextureLayout gfx.DescriptorSetLayout
	Layout        gfx.PipelineLayout
	Pipeline      gfx.Pipeline
}

type templateKey struct {
	textures     int
	transparency asset.Transparency
}

// MaterialHandle refers to a material held by a MaterialCache.
type MaterialHandle gfx.Handle

// Material is a template plus the textures bound to it.
type Material struct {
	ID           uuid.UUID
	Key          string
	Template     TemplateHandle
	Textures     []TextureHandle
	TextureSet   gfx.DescriptorSet
	Transparency asset.Transparency
}

// RenderTarget reports the render pass pipelines are built against.
type RenderTarget interface {
	RenderPass() gfx.RenderPass
	Samples() gfx.SampleCount
}

// MaterialCacheDeps are the caches a MaterialCache builds on.
type MaterialCacheDeps struct {
	Source          asset.Source
	Layouts         *DescriptorLayoutCache
	PipelineLayouts *PipelineLayoutCache
	Shaders         *ShaderModuleCache
	Textures        *TextureCache
	Descriptors     *DescriptorAllocator
	Target          RenderTarget
}

// MaterialCache creates materials and the templates behind them.
type MaterialCache struct {
	device gfx.Device
	deps   MaterialCacheDeps
	log    logrus.FieldLogger

	templates   gfx.Arena[MaterialTemplate]
	templateFor map[templateKey]TemplateHandle

	materials gfx.Arena[Material]
	byKey     map[string]MaterialHandle
}

// NewMaterialCache creates an empty cache.
func NewMaterialCache(device gfx.Device, deps MaterialCacheDeps, logger logrus.FieldLogger) *MaterialCache {
	return &MaterialCache{
		device:      device,
		deps:        deps,
		log:         componentLogger(logger, "materials"),
		templateFor: make(map[templateKey]TemplateHandle),
		byKey:       make(map[string]MaterialHandle),
	}
}

// Create returns the material described by the asset at path.
func (c *MaterialCache) Create(path string) (MaterialHandle, error) {
	if h, ok := c.byKey[path]; ok {
		return h, nil
	}
	a, err := asset.Open(c.deps.Source, path)
	if err != nil {
		return MaterialHandle{}, errors.Wrapf(err, "load material %s", path)
	}
	info, err := asset.ParseMaterialInfo(a)
	if err != nil {
		return MaterialHandle{}, errors.Wrapf(err, "material %s", path)
	}
	return c.CreateFromTextures(path, info.TexturePaths(), info.Transparency)
}

// CreateFromTextures returns the material stored under key, creating it
// from textures on first request. Texture i is bound at binding i of set 2.
func (c *MaterialCache) CreateFromTextures(key string, textures []string, transparency asset.Transparency) (MaterialHandle, error) {
	if h, ok := c.byKey[key]; ok {
		return h, nil
	}
	if transparency == "" {
		transparency = asset.Opaque
	}
	log := c.log.WithField("path", key)

	handles := make([]TextureHandle, len(textures))
	for i, p := range textures {
		h, err := c.deps.Textures.Create(p)
		if err != nil {
			return MaterialHandle{}, errors.Wrapf(err, "material %s", key)
		}
		handles[i] = h
	}

	th, err := c.template(len(textures), transparency)
	if err != nil {
		log.WithError(err).Error("Material template creation failed")
		return MaterialHandle{}, errors.Wrapf(err, "material %s", key)
	}

	mat := Material{
		ID:           uuid.New(),
		Key:          key,
		Template:     th,
		Textures:     handles,
		Transparency: transparency,
	}
	if len(handles) > 0 {
		builder := NewDescriptorBuilder(c.device, c.deps.Layouts, c.deps.Descriptors)
		for i, h := range handles {
			tex, _ := c.deps.Textures.Get(h)
			builder.BindImage(uint32(i), tex.View, tex.Sampler, gfx.DescriptorCombinedImageSampler, gfx.StageFragment)
		}
		if mat.TextureSet, _, err = builder.Build(); err != nil {
			return MaterialHandle{}, errors.Wrapf(err, "texture set of material %s", key)
		}
	}

	h := MaterialHandle(c.materials.Insert(mat))
	c.byKey[key] = h
	log.WithField("textures", len(handles)).Debug("Material created")
	return h, nil
}

func (c *MaterialCache) template(textures int, transparency asset.Transparency) (TemplateHandle, error) {
	key := templateKey{textures, transparency}
	if h, ok := c.templateFor[key]; ok {
		return h, nil
	}

	global, err := c.deps.Layouts.Allocate(GlobalBindings)
	if err != nil {
		return TemplateHandle{}, err
	}
	objects, err := c.deps.Layouts.Allocate(ObjectBindings)
	if err != nil {
		return TemplateHandle{}, err
	}
	texLayout, err := c.deps.Layouts.Allocate(TextureBindings(textures))
	if err != nil {
		return TemplateHandle{}, err
	}
	layout, err := c.deps.PipelineLayouts.Create([]gfx.DescriptorSetLayout{global, objects, texLayout}, nil)
	if err != nil {
		return TemplateHandle{}, err
	}

	t := MaterialTemplate{
		Textures:      textures,
		Transparency:  transparency,
		TextureLayout: texLayout,
		Layout:        layout,
	}
	if t.Pipeline, err = c.buildPipeline(t, c.deps.Target.RenderPass(), c.deps.Target.Samples()); err != nil {
		return TemplateHandle{}, err
	}
	h := TemplateHandle(c.templates.Insert(t))
	c.templateFor[key] = h
	c.log.WithFields(logrus.Fields{"textures": textures, "transparency": transparency}).Debug("Material template created")
	return h, nil
}

func (c *MaterialCache) buildPipeline(t MaterialTemplate, rp gfx.RenderPass, samples gfx.SampleCount) (gfx.Pipeline, error) {
	vert, err := c.deps.Shaders.Create(DefaultVertexShader)
	if err != nil {
		return gfx.Pipeline{}, err
	}
	frag, err := c.deps.Shaders.Create(DefaultFragmentShader)
	if err != nil {
		return gfx.Pipeline{}, err
	}
	p, err := c.device.CreateGraphicsPipeline(gfx.PipelineInfo{
		Layout:     t.Layout,
		RenderPass: rp,
		Vertex:     vert,
		Fragment:   frag,
		Vertices:   model.VertexLayout(),
		Samples:    samples,
		CullBack:   true,
		DepthTest:  true,
		DepthWrite: t.Transparency != asset.Transparent,
		Blend:      t.Transparency == asset.Transparent,
	})
	if err != nil {
		return gfx.Pipeline{}, errors.Wrap(err, "create material pipeline")
	}
	return p, nil
}

// RebuildPipelines recreates every template's pipeline against rp. Template
// handles stay valid, the replaced pipelines are destroyed. The device must
// be idle.
func (c *MaterialCache) RebuildPipelines(rp gfx.RenderPass, samples gfx.SampleCount) error {
	var firstErr error
	c.templates.Each(func(h gfx.Handle, t MaterialTemplate) {
		p, err := c.buildPipeline(t, rp, samples)
		if err != nil {
			c.log.WithError(err).Error("Material pipeline rebuild failed")
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		c.device.DestroyPipeline(t.Pipeline)
		t.Pipeline = p
		c.templates.Set(h, t)
	})
	if firstErr == nil {
		c.log.WithField("templates", c.templates.Len()).Debug("Material pipelines rebuilt")
	}
	return firstErr
}

// Get returns the material behind h.
func (c *MaterialCache) Get(h MaterialHandle) (Material, bool) {
	return c.materials.Get(gfx.Handle(h))
}

// Template returns the template behind h.
func (c *MaterialCache) Template(h TemplateHandle) (MaterialTemplate, bool) {
	return c.templates.Get(gfx.Handle(h))
}

// Lookup returns the handle of an already created material.
func (c *MaterialCache) Lookup(key string) (MaterialHandle, bool) {
	h, ok := c.byKey[key]
	return h, ok
}

// Destroy evicts a material. Its textures stay in the texture cache and
// its set is reclaimed with the allocator's pools.
func (c *MaterialCache) Destroy(h MaterialHandle) error {
	m, ok := c.materials.Remove(gfx.Handle(h))
	if !ok {
		return errors.Wrapf(ErrUnknownResource, "material %s", gfx.Handle(h))
	}
	delete(c.byKey, m.Key)
	return nil
}

// Len returns the number of materials held.
func (c *MaterialCache) Len() int {
	return c.materials.Len()
}

// Templates returns the number of templates held.
func (c *MaterialCache) Templates() int {
	return c.templates.Len()
}

// DestroyAll drops every material and destroys every template pipeline.
// The device must be idle.
func (c *MaterialCache) DestroyAll() {
	c.materials.Each(func(h gfx.Handle, _ Material) {
		c.materials.Remove(h)
	})
	c.templates.Each(func(h gfx.Handle, t MaterialTemplate) {
		c.device.DestroyPipeline(t.Pipeline)
		c.templates.Remove(h)
	})
	c.byKey = make(map[string]MaterialHandle)
	c.templateFor = make(map[templateKey]TemplateHandle)
}
