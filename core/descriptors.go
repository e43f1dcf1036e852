// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding = gfx.DescriptorLayoutBinding

// DescriptorLayoutKey is the canonical form of a binding list: sorted by
// binding index with no duplicate indices. Two keys are equal when their
// sorted lists are equal, regardless of the order the bindings came in.
type DescriptorLayoutKey struct {
	bindings []DescriptorBinding
	hash     uint64
}

// NewDescriptorLayoutKey canonicalises bindings. The input slice is not modified.
func NewDescriptorLayoutKey(bindings []DescriptorBinding) (DescriptorLayoutKey, error) {
	sorted := append([]DescriptorBinding(nil), bindings...)
	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding }) {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Binding == sorted[i-1].Binding {
			return DescriptorLayoutKey{}, errors.Wrapf(ErrDuplicateBinding, "binding %d", sorted[i].Binding)
		}
	}
	return DescriptorLayoutKey{bindings: sorted, hash: hashBindings(sorted)}, nil
}

// hashBindings packs every binding into one word, hashes it and folds the
// results together with xor.
func hashBindings(bindings []DescriptorBinding) uint64 {
	result := uint64(len(bindings))
	var word [8]byte
	for _, b := range bindings {
		packed := uint64(b.Binding) | uint64(b.Type)<<8 | uint64(b.Count)<<16 | uint64(b.Stages)<<24
		binary.LittleEndian.PutUint64(word[:], packed)
		h := fnv.New64a()
		h.Write(word[:])
		result ^= h.Sum64()
	}
	return result
}

// Bindings returns a copy of the sorted bindings.
func (k DescriptorLayoutKey) Bindings() []DescriptorBinding {
	return append([]DescriptorBinding(nil), k.bindings...)
}

// Len returns the number of bindings.
func (k DescriptorLayoutKey) Len() int {
	return len(k.bindings)
}

// Hash returns the structural hash of the key.
func (k DescriptorLayoutKey) Hash() uint64 {
	return k.hash
}

// Equal reports whether both keys describe the same layout.
func (k DescriptorLayoutKey) Equal(other DescriptorLayoutKey) bool {
	if len(k.bindings) != len(other.bindings) {
		return false
	}
	for i := range k.bindings {
		if k.bindings[i] != other.bindings[i] {
			return false
		}
	}
	return true
}

type layoutEntry struct {
	key    DescriptorLayoutKey
	layout gfx.DescriptorSetLayout
}

// DescriptorLayoutCache hands out one layout object per distinct
// binding list. It is not safe for concurrent use.
type DescriptorLayoutCache struct {
	device gfx.DescriptorDevice
	log    logrus.FieldLogger

	hash    func(DescriptorLayoutKey) uint64
	buckets map[uint64][]layoutEntry
	count   int
}

// NewDescriptorLayoutCache creates an empty cache.
func NewDescriptorLayoutCache(device gfx.DescriptorDevice, logger logrus.FieldLogger) *DescriptorLayoutCache {
	return &DescriptorLayoutCache{
		device:  device,
		log:     componentLogger(logger, "descriptor-layouts"),
		hash:    DescriptorLayoutKey.Hash,
		buckets: map[uint64][]layoutEntry{},
	}
}

// Allocate returns the layout for bindings, creating it on first request.
func (c *DescriptorLayoutCache) Allocate(bindings []DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	key, err := NewDescriptorLayoutKey(bindings)
	if err != nil {
		return gfx.DescriptorSetLayout{}, err
	}
	return c.AllocateKey(key)
}

// AllocateKey is Allocate for an already canonical key.
func (c *DescriptorLayoutCache) AllocateKey(key DescriptorLayoutKey) (gfx.DescriptorSetLayout, error) {
	h := c.hash(key)
	bucket := c.buckets[h]
	for _, e := range bucket {
		if e.key.Equal(key) {
			return e.layout, nil
		}
	}
	if len(bucket) > 0 {
		c.log.WithField("hash", h).Warn("Descriptor layout hash collision")
	}

	layout, err := c.device.CreateDescriptorSetLayout(key.bindings)
	if err != nil {
		return gfx.DescriptorSetLayout{}, errors.Wrap(err, "create descriptor set layout")
	}
	c.buckets[h] = append(bucket, layoutEntry{key: key, layout: layout})
	c.count++
	c.log.WithField("bindings", key.Len()).Debug("Descriptor layout created")
	return layout, nil
}

// Len returns the number of layouts held.
func (c *DescriptorLayoutCache) Len() int {
	return c.count
}

// Destroy destroys every layout the cache created.
func (c *DescriptorLayoutCache) Destroy() {
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			c.device.DestroyDescriptorSetLayout(e.layout)
		}
	}
	c.buckets = map[uint64][]layoutEntry{}
	c.count = 0
}

// DescriptorBuilder collects buffer and image bindings, then allocates and
// writes a set whose layout comes from the layout cache.
type DescriptorBuilder struct {
	device  gfx.DescriptorDevice
	layouts *DescriptorLayoutCache
	alloc   *DescriptorAllocator

	bindings []DescriptorBinding
	writes   []gfx.DescriptorWrite
}

// NewDescriptorBuilder returns a builder allocating sets from alloc.
func NewDescriptorBuilder(device gfx.DescriptorDevice, layouts *DescriptorLayoutCache, alloc *DescriptorAllocator) *DescriptorBuilder {
	return &DescriptorBuilder{
		device:  device,
		layouts: layouts,
		alloc:   alloc,
	}
}

// BindBuffer binds a buffer range at binding.
func (b *DescriptorBuilder) BindBuffer(binding uint32, buffer gfx.Buffer, offset, size uint64, t gfx.DescriptorType, stages gfx.ShaderStage) *DescriptorBuilder {
	b.bindings = append(b.bindings, DescriptorBinding{Binding: binding, Type: t, Count: 1, Stages: stages})
	b.writes = append(b.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    t,
		Buffer:  buffer,
		Offset:  offset,
		Range:   size,
	})
	return b
}

// BindImage binds a sampled image at binding.
func (b *DescriptorBuilder) BindImage(binding uint32, view gfx.ImageView, sampler gfx.Sampler, t gfx.DescriptorType, stages gfx.ShaderStage) *DescriptorBuilder {
	b.bindings = append(b.bindings, DescriptorBinding{Binding: binding, Type: t, Count: 1, Stages: stages})
	b.writes = append(b.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    t,
		View:    view,
		Sampler: sampler,
		Layout:  gfx.LayoutShaderReadOnly,
	})
	return b
}

// Build allocates and writes the set. The builder is empty afterwards,
// whether or not Build succeeded.
func (b *DescriptorBuilder) Build() (gfx.DescriptorSet, gfx.DescriptorSetLayout, error) {
	bindings, writes := b.bindings, b.writes
	b.bindings, b.writes = nil, nil

	layout, err := b.layouts.Allocate(bindings)
	if err != nil {
		return gfx.DescriptorSet{}, gfx.DescriptorSetLayout{}, err
	}
	set, err := b.alloc.Allocate(layout)
	if err != nil {
		return gfx.DescriptorSet{}, gfx.DescriptorSetLayout{}, err
	}
	for i := range writes {
		writes[i].Set = set
	}
	b.device.UpdateDescriptorSets(writes)
	return set, layout, nil
}
