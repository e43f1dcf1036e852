// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "fmt"

// Handle identifies an object stored in an Arena. The zero Handle
// never refers to a live object.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Valid reports whether the handle could refer to a live object.
func (h Handle) Valid() bool {
	return h.Gen != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Gen)
}

// Typed handles for every GPU object a Device hands out.
type (
	Buffer              Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	ShaderModule        Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	PipelineLayout      Handle
	Pipeline            Handle
	RenderPass          Handle
	Framebuffer         Handle
	CommandPool         Handle
	CommandBuffer       Handle
	Semaphore           Handle
	Fence               Handle
	Swapchain           Handle
)

type arenaSlot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena is a dense store addressed by generation-checked handles.
// Removing an object bumps the generation of its slot, so handles to
// removed objects never resolve again, even after the slot is reused.
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}
	slot := &a.slots[idx]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.value = v
	slot.live = true
	a.live++
	return Handle{Index: idx, Gen: slot.gen}
}

func (a *Arena[T]) slot(h Handle) *arenaSlot[T] {
	if !h.Valid() || int(h.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return nil
	}
	return s
}

// Get returns the object stored under h.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.slot(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Set replaces the object stored under h, keeping the handle valid.
func (a *Arena[T]) Set(h Handle, v T) bool {
	s := a.slot(h)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Remove deletes the object stored under h and returns it.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	s := a.slot(h)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.live = false
	a.free = append(a.free, h.Index)
	a.live--
	return v, true
}

// Len returns the number of live objects.
func (a *Arena[T]) Len() int {
	return a.live
}

// Each calls fn for every live object in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(Handle{Index: uint32(i), Gen: s.gen}, s.value)
		}
	}
}
