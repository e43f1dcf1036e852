// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	uboBinding     = DescriptorBinding{Binding: 0, Type: gfx.DescriptorUniformBuffer, Count: 1, Stages: gfx.StageVertex}
	samplerBinding = DescriptorBinding{Binding: 1, Type: gfx.DescriptorCombinedImageSampler, Count: 1, Stages: gfx.StageFragment}
	ssboBinding    = DescriptorBinding{Binding: 2, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageVertex}
)

func TestDescriptorLayoutKeyIsCanonical(t *testing.T) {
	a, err := NewDescriptorLayoutKey([]DescriptorBinding{ssboBinding, uboBinding, samplerBinding})
	require.NoError(t, err)
	b, err := NewDescriptorLayoutKey([]DescriptorBinding{uboBinding, samplerBinding, ssboBinding})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, []DescriptorBinding{uboBinding, samplerBinding, ssboBinding}, a.Bindings())

	c, err := NewDescriptorLayoutKey([]DescriptorBinding{uboBinding, samplerBinding})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestDescriptorLayoutKeyDoesNotModifyInput(t *testing.T) {
	in := []DescriptorBinding{ssboBinding, uboBinding}
	_, err := NewDescriptorLayoutKey(in)
	require.NoError(t, err)
	assert.Equal(t, ssboBinding, in[0])
}

func TestDescriptorLayoutKeyRejectsDuplicates(t *testing.T) {
	dup := samplerBinding
	dup.Binding = 0
	_, err := NewDescriptorLayoutKey([]DescriptorBinding{uboBinding, dup})
	assert.True(t, errors.Is(err, ErrDuplicateBinding))
}

func TestDescriptorLayoutCacheMemoises(t *testing.T) {
	dev := gfxtest.NewDevice()
	cache := NewDescriptorLayoutCache(dev, nullLogger())

	l1, err := cache.Allocate([]DescriptorBinding{samplerBinding, uboBinding})
	require.NoError(t, err)
	l2, err := cache.Allocate([]DescriptorBinding{uboBinding, samplerBinding})
	require.NoError(t, err)
	assert.Equal(t, l1, l2)
	assert.Equal(t, 1, dev.Created[gfxtest.KindSetLayout])

	l3, err := cache.Allocate([]DescriptorBinding{uboBinding})
	require.NoError(t, err)
	assert.NotEqual(t, l1, l3)
	assert.Equal(t, 2, cache.Len())

	bindings, ok := dev.SetLayout(l1)
	require.True(t, ok)
	assert.Equal(t, []gfx.DescriptorLayoutBinding{uboBinding, samplerBinding}, bindings)

	cache.Destroy()
	assert.Equal(t, 0, dev.Live(gfxtest.KindSetLayout))
	assert.Equal(t, 0, cache.Len())
}

func TestDescriptorLayoutCacheFailureLeavesNoEntry(t *testing.T) {
	dev := gfxtest.NewDevice()
	cache := NewDescriptorLayoutCache(dev, nullLogger())
	dev.Fail("CreateDescriptorSetLayout")

	_, err := cache.Allocate([]DescriptorBinding{uboBinding})
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Allocate([]DescriptorBinding{uboBinding})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestDescriptorLayoutCacheHashCollision(t *testing.T) {
	dev := gfxtest.NewDevice()
	logger, hook := test.NewNullLogger()
	cache := NewDescriptorLayoutCache(dev, logger)
	cache.hash = func(DescriptorLayoutKey) uint64 { return 42 }

	l1, err := cache.Allocate([]DescriptorBinding{uboBinding})
	require.NoError(t, err)
	l2, err := cache.Allocate([]DescriptorBinding{samplerBinding})
	require.NoError(t, err)
	assert.NotEqual(t, l1, l2)
	assert.Equal(t, 2, cache.Len())
	assert.Len(t, cache.buckets[42], 2)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "Descriptor layout hash collision", hook.LastEntry().Message)

	again, err := cache.Allocate([]DescriptorBinding{samplerBinding})
	require.NoError(t, err)
	assert.Equal(t, l2, again)
	assert.Equal(t, 2, dev.Created[gfxtest.KindSetLayout])
}

func TestDescriptorBuilder(t *testing.T) {
	dev := gfxtest.NewDevice()
	layouts := NewDescriptorLayoutCache(dev, nullLogger())
	alloc := NewDescriptorAllocator(dev, 0, nil, nullLogger())

	buf, err := dev.CreateBuffer(gfx.BufferInfo{Size: 64, Usage: gfx.BufferUniform, Memory: gfx.MemoryHostVisible})
	require.NoError(t, err)
	img, err := dev.CreateImage(gfx.ImageInfo{MipLevels: 1})
	require.NoError(t, err)
	view, err := dev.CreateImageView(gfx.ImageViewInfo{Image: img})
	require.NoError(t, err)
	sampler, err := dev.CreateSampler(gfx.SamplerInfo{})
	require.NoError(t, err)

	set, layout, err := NewDescriptorBuilder(dev, layouts, alloc).
		BindImage(1, view, sampler, gfx.DescriptorCombinedImageSampler, gfx.StageFragment).
		BindBuffer(0, buf, 0, 64, gfx.DescriptorUniformBuffer, gfx.StageVertex).
		Build()
	require.NoError(t, err)

	expected, err := layouts.Allocate([]DescriptorBinding{uboBinding, samplerBinding})
	require.NoError(t, err)
	assert.Equal(t, expected, layout)

	obj, ok := dev.Set(set)
	require.True(t, ok)
	assert.Equal(t, layout, obj.Layout)
	require.Len(t, obj.Writes, 2)
	assert.Equal(t, buf, obj.Writes[0].Buffer)
	assert.Equal(t, uint64(64), obj.Writes[0].Range)
	assert.Equal(t, view, obj.Writes[1].View)
	assert.Equal(t, gfx.LayoutShaderReadOnly, obj.Writes[1].Layout)
	assert.Empty(t, dev.Violations)
}

func BenchmarkDescriptorLayoutKey(b *testing.B) {
	bindings := []DescriptorBinding{ssboBinding, samplerBinding, uboBinding}
	for idx := 0; idx < b.N; idx++ {
		NewDescriptorLayoutKey(bindings)
	}
}
