// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// PoolSizeRatio is the number of descriptors of a type a pool holds per set.
type PoolSizeRatio struct {
	Type  gfx.DescriptorType
	Ratio float32
}

// DefaultPoolMaxSets is the number of sets each pool is sized for.
const DefaultPoolMaxSets = 1000

// DefaultPoolSizes weights sampled images heaviest, plain buffers in the
// middle and samplers and input attachments lightest.
var DefaultPoolSizes = []PoolSizeRatio{
	{gfx.DescriptorSampler, 0.5},
	{gfx.DescriptorCombinedImageSampler, 4},
	{gfx.DescriptorSampledImage, 4},
	{gfx.DescriptorStorageImage, 1},
	{gfx.DescriptorUniformTexelBuffer, 1},
	{gfx.DescriptorStorageTexelBuffer, 1},
	{gfx.DescriptorUniformBuffer, 2},
	{gfx.DescriptorStorageBuffer, 2},
	{gfx.DescriptorUniformBufferDynamic, 1},
	{gfx.DescriptorStorageBufferDynamic, 1},
	{gfx.DescriptorInputAttachment, 0.5},
}

// PoolStats is a snapshot of an allocator's pools.
type PoolStats struct {
	Created    int
	Destroyed  int
	Free       int
	Used       int
	HasCurrent bool
}

// DescriptorAllocator hands out descriptor sets from a growing set of
// pools. Exhausted pools are parked as used until Reset returns them to
// the free list in bulk. It is not safe for concurrent use.
type DescriptorAllocator struct {
	device  gfx.DescriptorDevice
	log     logrus.FieldLogger
	sizes   []gfx.PoolSize
	maxSets uint32

	current    gfx.DescriptorPool
	hasCurrent bool
	used       []gfx.DescriptorPool
	free       []gfx.DescriptorPool

	created   int
	destroyed int
}

// NewDescriptorAllocator creates an allocator whose pools hold maxSets
// sets with descriptors in the given ratios. Zero maxSets and nil sizes
// select the defaults.
func NewDescriptorAllocator(device gfx.DescriptorDevice, maxSets uint32, sizes []PoolSizeRatio, logger logrus.FieldLogger) *DescriptorAllocator {
	if maxSets == 0 {
		maxSets = DefaultPoolMaxSets
	}
	if sizes == nil {
		sizes = DefaultPoolSizes
	}
	poolSizes := make([]gfx.PoolSize, 0, len(sizes))
	for _, s := range sizes {
		count := uint32(s.Ratio * float32(maxSets))
		if count == 0 {
			continue
		}
		poolSizes = append(poolSizes, gfx.PoolSize{Type: s.Type, Count: count})
	}
	return &DescriptorAllocator{
		device:  device,
		log:     componentLogger(logger, "descriptor-allocator"),
		sizes:   poolSizes,
		maxSets: maxSets,
	}
}

func (a *DescriptorAllocator) grabPool() (gfx.DescriptorPool, error) {
	if n := len(a.free); n > 0 {
		pool := a.free[n-1]
		a.free = a.free[:n-1]
		return pool, nil
	}
	pool, err := a.device.CreateDescriptorPool(gfx.DescriptorPoolInfo{
		MaxSets: a.maxSets,
		Sizes:   a.sizes,
	})
	if err != nil {
		return gfx.DescriptorPool{}, errors.Wrap(err, "create descriptor pool")
	}
	a.created++
	a.log.WithField("pools", a.created).Debug("Descriptor pool created")
	return pool, nil
}

func (a *DescriptorAllocator) ensureCurrent() error {
	if a.hasCurrent {
		return nil
	}
	pool, err := a.grabPool()
	if err != nil {
		return err
	}
	a.current = pool
	a.hasCurrent = true
	return nil
}

// Allocate returns a set of the given layout. When the current pool is
// fragmented or out of memory it is parked as used and the allocation is
// retried exactly once against a fresh pool.
func (a *DescriptorAllocator) Allocate(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	if err := a.ensureCurrent(); err != nil {
		return gfx.DescriptorSet{}, err
	}

	set, err := a.device.AllocateDescriptorSet(a.current, layout)
	if err == nil {
		return set, nil
	}
	if !gfx.IsPoolExhausted(err) {
		return gfx.DescriptorSet{}, errors.Wrap(err, "allocate descriptor set")
	}

	a.used = append(a.used, a.current)
	a.hasCurrent = false
	if err := a.ensureCurrent(); err != nil {
		return gfx.DescriptorSet{}, err
	}

	set, err = a.device.AllocateDescriptorSet(a.current, layout)
	if err != nil {
		return gfx.DescriptorSet{}, errors.Wrap(err, "allocate descriptor set from fresh pool")
	}
	return set, nil
}

// Reset resets every used pool and the current one and moves them to the
// free list. Sets allocated before are invalid afterwards. Pools that fail
// to reset are destroyed instead.
func (a *DescriptorAllocator) Reset() error {
	pools := a.used
	if a.hasCurrent {
		pools = append(pools, a.current)
	}
	a.used = nil
	a.hasCurrent = false
	a.current = gfx.DescriptorPool{}

	var firstErr error
	for _, pool := range pools {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			a.log.WithError(err).Error("Descriptor pool reset failed, destroying it")
			a.device.DestroyDescriptorPool(pool)
			a.destroyed++
			if firstErr == nil {
				firstErr = errors.Wrap(err, "reset descriptor pool")
			}
			continue
		}
		a.free = append(a.free, pool)
	}
	return firstErr
}

// Stats returns the current pool bookkeeping.
func (a *DescriptorAllocator) Stats() PoolStats {
	return PoolStats{
		Created:    a.created,
		Destroyed:  a.destroyed,
		Free:       len(a.free),
		Used:       len(a.used),
		HasCurrent: a.hasCurrent,
	}
}

// Destroy destroys every pool the allocator holds.
func (a *DescriptorAllocator) Destroy() {
	pools := append(a.free, a.used...)
	if a.hasCurrent {
		pools = append(pools, a.current)
	}
	for _, pool := range pools {
		a.device.DestroyDescriptorPool(pool)
		a.destroyed++
	}
	a.free, a.used = nil, nil
	a.hasCurrent = false
	a.current = gfx.DescriptorPool{}
}
