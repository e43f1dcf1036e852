// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	"github.com/koru3d/lumen/core"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletionQueueFlushesInReverse(t *testing.T) {
	dev := gfxtest.NewDevice()
	buf, err := dev.CreateBuffer(gfx.BufferInfo{Size: 16, Memory: gfx.MemoryHostVisible})
	require.NoError(t, err)
	img, err := dev.CreateImage(gfx.ImageInfo{MipLevels: 1})
	require.NoError(t, err)
	view, err := dev.CreateImageView(gfx.ImageViewInfo{Image: img})
	require.NoError(t, err)
	fence, err := dev.CreateFence(false)
	require.NoError(t, err)

	var q core.DeletionQueue
	q.Push(core.DeleteBuffer(buf), core.DeleteImage(img))
	q.Push(core.DeleteImageView(view))
	q.Push(core.DeleteFence(fence))
	assert.Equal(t, 4, q.Len())

	q.Flush(dev)
	assert.Equal(t, 0, q.Len())
	require.Len(t, dev.DestroyLog, 4)
	assert.Equal(t, []gfxtest.Destroyed{
		{Kind: gfxtest.KindFence, Handle: gfx.Handle(fence)},
		{Kind: gfxtest.KindImageView, Handle: gfx.Handle(view)},
		{Kind: gfxtest.KindImage, Handle: gfx.Handle(img)},
		{Kind: gfxtest.KindBuffer, Handle: gfx.Handle(buf)},
	}, dev.DestroyLog)
	assert.Empty(t, dev.Violations)
}

func TestDeletionQueueIgnoresInvalidHandles(t *testing.T) {
	var q core.DeletionQueue
	q.Push(core.DeleteBuffer(gfx.Buffer{}), core.DeleteSampler(gfx.Sampler{}))
	assert.Equal(t, 0, q.Len())
}

func TestDeletionQueueReusableAfterFlush(t *testing.T) {
	dev := gfxtest.NewDevice()
	var q core.DeletionQueue
	for round := 0; round < 3; round++ {
		s, err := dev.CreateSemaphore()
		require.NoError(t, err)
		q.Push(core.DeleteSemaphore(s))
		pending := q.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, core.KindSemaphore, pending[0].Kind)
		q.Flush(dev)
	}
	assert.Equal(t, 3, dev.DestroyedCount(gfxtest.KindSemaphore))
	assert.Equal(t, 0, dev.Live(gfxtest.KindSemaphore))
}

func TestResourceKindString(t *testing.T) {
	assert.Equal(t, "descriptor set layout", core.KindDescriptorSetLayout.String())
	assert.Equal(t, "ResourceKind(99)", core.ResourceKind(99).String())
}

func BenchmarkDeletionQueueFlush(b *testing.B) {
	dev := gfxtest.NewDevice()
	var q core.DeletionQueue
	for idx := 0; idx < b.N; idx++ {
		for i := 0; i < 64; i++ {
			s, _ := dev.CreateSemaphore()
			q.Push(core.DeleteSemaphore(s))
		}
		q.Flush(dev)
	}
}
