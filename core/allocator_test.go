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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) (*gfxtest.Device, *DescriptorAllocator, gfx.DescriptorSetLayout) {
	dev := gfxtest.NewDevice()
	layout, err := dev.CreateDescriptorSetLayout([]gfx.DescriptorLayoutBinding{uboBinding})
	require.NoError(t, err)
	return dev, NewDescriptorAllocator(dev, 0, nil, nullLogger()), layout
}

func TestDescriptorAllocatorDefaultSizes(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	set, err := alloc.Allocate(layout)
	require.NoError(t, err)

	obj, ok := dev.Set(set)
	require.True(t, ok)
	pool, ok := dev.Pool(obj.Pool)
	require.True(t, ok)
	assert.Equal(t, uint32(DefaultPoolMaxSets), pool.Info.MaxSets)
	assert.Contains(t, pool.Info.Sizes, gfx.PoolSize{Type: gfx.DescriptorCombinedImageSampler, Count: 4000})
	assert.Contains(t, pool.Info.Sizes, gfx.PoolSize{Type: gfx.DescriptorSampler, Count: 500})
	assert.Len(t, pool.Info.Sizes, 11)
}

func TestDescriptorAllocatorReusesCurrentPool(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	for i := 0; i < 10; i++ {
		_, err := alloc.Allocate(layout)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dev.Created[gfxtest.KindPool])
	assert.Equal(t, PoolStats{Created: 1, HasCurrent: true}, alloc.Stats())
}

func TestDescriptorAllocatorRetriesOnceOnExhaustion(t *testing.T) {
	for _, exhausted := range []error{gfx.ErrOutOfPoolMemory, gfx.ErrFragmentedPool} {
		dev, alloc, layout := newTestAllocator(t)
		_, err := alloc.Allocate(layout)
		require.NoError(t, err)

		dev.AllocResults = []error{exhausted}
		set, err := alloc.Allocate(layout)
		require.NoError(t, err)
		assert.True(t, gfx.Handle(set).Valid())

		stats := alloc.Stats()
		assert.Equal(t, 2, stats.Created)
		assert.Equal(t, 1, stats.Used)
		assert.True(t, stats.HasCurrent)
	}
}

func TestDescriptorAllocatorGivesUpAfterSecondFailure(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	dev.AllocResults = []error{gfx.ErrOutOfPoolMemory, gfx.ErrFragmentedPool, gfx.ErrOutOfPoolMemory}

	_, err := alloc.Allocate(layout)
	require.Error(t, err)
	assert.True(t, gfx.IsPoolExhausted(err))
	assert.Equal(t, 2, dev.Created[gfxtest.KindPool])
	assert.Len(t, dev.AllocResults, 1, "exactly one retry")
}

func TestDescriptorAllocatorDoesNotRetryOtherErrors(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	dev.AllocResults = []error{gfxtest.ErrInjected}

	_, err := alloc.Allocate(layout)
	assert.True(t, errors.Is(err, gfxtest.ErrInjected))
	assert.Equal(t, 1, dev.Created[gfxtest.KindPool])
	assert.Equal(t, 0, alloc.Stats().Used)
}

func TestDescriptorAllocatorFillsPools(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	dev.PoolCapacity = 2
	for i := 0; i < 5; i++ {
		_, err := alloc.Allocate(layout)
		require.NoError(t, err)
	}
	assert.Equal(t, PoolStats{Created: 3, Used: 2, HasCurrent: true}, alloc.Stats())
}

func TestDescriptorAllocatorReset(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	dev.PoolCapacity = 2
	for i := 0; i < 5; i++ {
		_, err := alloc.Allocate(layout)
		require.NoError(t, err)
	}
	require.NoError(t, alloc.Reset())
	assert.Equal(t, PoolStats{Created: 3, Free: 3}, alloc.Stats())
	assert.Equal(t, 0, dev.Live(gfxtest.KindSet))

	for i := 0; i < 5; i++ {
		_, err := alloc.Allocate(layout)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, dev.Created[gfxtest.KindPool], "pools are recycled after reset")

	alloc.Destroy()
	assert.Equal(t, 0, dev.Live(gfxtest.KindPool))
	assert.Equal(t, 3, alloc.Stats().Destroyed)
}

func TestDescriptorAllocatorResetFailureDestroysPool(t *testing.T) {
	dev, alloc, layout := newTestAllocator(t)
	_, err := alloc.Allocate(layout)
	require.NoError(t, err)

	dev.Fail("ResetDescriptorPool")
	require.Error(t, alloc.Reset())
	assert.Equal(t, PoolStats{Created: 1, Destroyed: 1}, alloc.Stats())
	assert.Equal(t, 0, dev.Live(gfxtest.KindPool))
}
