// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTextureCache(t *testing.T) (*gfxtest.Device, *directFrames, *TextureCache) {
	dev := gfxtest.NewDevice()
	frames := newDirectFrames(t, dev)
	return dev, frames, NewTextureCache(dev, testSource(t), frames, nullLogger())
}

func TestTextureCacheCreate(t *testing.T) {
	dev, _, cache := newTestTextureCache(t)

	h, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)
	tex, ok := cache.Get(h)
	require.True(t, ok)
	assert.Equal(t, "textures/albedo.texi", tex.Path)
	assert.Equal(t, gfx.Extent2D{Width: 4, Height: 4}, tex.Extent)
	assert.Equal(t, uint32(3), tex.MipLevels)

	img, ok := dev.Image(tex.Image)
	require.True(t, ok)
	assert.Equal(t, gfx.FormatRGBA8SRGB, img.Info.Format)
	assert.Equal(t, uint32(3), img.Info.MipLevels)

	assert.Equal(t, 1, dev.CountOps(gfxtest.OpCopyBufferToImage))
	assert.Equal(t, 2, dev.CountOps(gfxtest.OpBlit))
	assert.Equal(t, 1, dev.QueueWaits)
	assert.Equal(t, 0, dev.Live(gfxtest.KindBuffer), "staging buffer is released")
	assert.Equal(t, 0, dev.Live(gfxtest.KindCommandBuffer), "transfer command buffer is freed")
	assert.Empty(t, dev.Violations)
}

func TestTextureCacheMipChainHalvesExtent(t *testing.T) {
	dev, _, cache := newTestTextureCache(t)
	_, err := cache.Create("textures/normal.texi")
	require.NoError(t, err)

	var sizes []gfx.Extent2D
	for _, c := range dev.Log {
		if c.Op == gfxtest.OpBlit {
			sizes = append(sizes, c.Detail.(gfx.BlitInfo).DstSize)
		}
	}
	assert.Equal(t, []gfx.Extent2D{{Width: 4, Height: 1}, {Width: 2, Height: 1}, {Width: 1, Height: 1}}, sizes)
}

func TestTextureCacheMemoises(t *testing.T) {
	dev, _, cache := newTestTextureCache(t)

	h1, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)
	ops := len(dev.Log)
	h2, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, cache.unpacked, "pixels are decompressed once")
	assert.Equal(t, ops, len(dev.Log), "no GPU work on a hit")
	assert.Equal(t, 1, dev.Created[gfxtest.KindImage])

	found, ok := cache.Lookup("textures/albedo.texi")
	assert.True(t, ok)
	assert.Equal(t, h1, found)
}

func TestTextureCacheFailureCleansUp(t *testing.T) {
	for _, method := range []string{"CreateImage", "Submit", "CreateImageView", "CreateSampler"} {
		dev, _, cache := newTestTextureCache(t)
		dev.Fail(method)

		_, err := cache.Create("textures/albedo.texi")
		require.Error(t, err, method)
		assert.Equal(t, 0, cache.Len(), method)
		_, ok := cache.Lookup("textures/albedo.texi")
		assert.False(t, ok, method)
		assert.Equal(t, 0, dev.Live(gfxtest.KindImage), method)
		assert.Equal(t, 0, dev.Live(gfxtest.KindImageView), method)
		assert.Equal(t, 0, dev.Live(gfxtest.KindSampler), method)
		assert.Equal(t, 0, dev.Live(gfxtest.KindBuffer), method)
	}
}

func TestTextureCacheMissingAsset(t *testing.T) {
	_, _, cache := newTestTextureCache(t)
	_, err := cache.Create("textures/missing.texi")
	assert.True(t, errors.Is(err, asset.ErrNotFound))
}

func TestTextureCacheDestroyDefers(t *testing.T) {
	dev, frames, cache := newTestTextureCache(t)
	h, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)

	require.NoError(t, cache.Destroy(h))
	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Get(h)
	assert.False(t, ok, "stale handle does not resolve")
	assert.Equal(t, 1, dev.Live(gfxtest.KindImage), "destruction waits for the frame")
	assert.Equal(t, 3, frames.deletion.Len())

	frames.deletion.Flush(dev)
	assert.Equal(t, 0, dev.Live(gfxtest.KindImage))
	assert.Equal(t, 0, dev.Live(gfxtest.KindImageView))
	assert.Equal(t, 0, dev.Live(gfxtest.KindSampler))
	assert.Empty(t, dev.Violations)

	assert.True(t, errors.Is(cache.Destroy(h), ErrUnknownResource))

	h2, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
}

func TestTextureCacheDestroyAll(t *testing.T) {
	dev, _, cache := newTestTextureCache(t)
	h1, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)
	_, err = cache.Create("textures/normal.texi")
	require.NoError(t, err)

	cache.DestroyAll()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, dev.Live(gfxtest.KindImage))
	assert.Equal(t, 0, dev.Live(gfxtest.KindSampler))

	h3, err := cache.Create("textures/albedo.texi")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "generations are not reused")
}
