// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// CreateSemaphore implements gfx.Device.
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := result(vk.CreateSemaphore(d.device, &sci, nil, &semaphore), "vk.CreateSemaphore()"); err != nil {
		return gfx.Semaphore{}, err
	}
	return gfx.Semaphore(d.semaphores.Insert(semaphore)), nil
}

// DestroySemaphore implements gfx.Device.
func (d *Device) DestroySemaphore(h gfx.Semaphore) {
	if semaphore, ok := d.semaphores.Remove(gfx.Handle(h)); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := result(vk.CreateFence(d.device, &fci, nil, &fence), "vk.CreateFence()"); err != nil {
		return gfx.Fence{}, err
	}
	return gfx.Fence(d.fences.Insert(fence)), nil
}

// DestroyFence implements gfx.Device.
func (d *Device) DestroyFence(h gfx.Fence) {
	if fence, ok := d.fences.Remove(gfx.Handle(h)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

// WaitFence blocks until the fence is signaled.
func (d *Device) WaitFence(h gfx.Fence) error {
	fence, ok := d.fences.Get(gfx.Handle(h))
	if !ok {
		return invalid("fence", gfx.Handle(h))
	}
	return result(vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64), "vk.WaitForFences()")
}

// ResetFence implements gfx.Device.
func (d *Device) ResetFence(h gfx.Fence) error {
	fence, ok := d.fences.Get(gfx.Handle(h))
	if !ok {
		return invalid("fence", gfx.Handle(h))
	}
	return result(vk.ResetFences(d.device, 1, []vk.Fence{fence}), "vk.ResetFences()")
}

func (d *Device) semaphoreList(hs []gfx.Semaphore) ([]vk.Semaphore, error) {
	semaphores := make([]vk.Semaphore, len(hs))
	for i, h := range hs {
		s, ok := d.semaphores.Get(gfx.Handle(h))
		if !ok {
			return nil, invalid("semaphore", gfx.Handle(h))
		}
		semaphores[i] = s
	}
	return semaphores, nil
}

// Submit implements gfx.Device.
func (d *Device) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	commandBuffers := make([]vk.CommandBuffer, len(info.Commands))
	for i, h := range info.Commands {
		cb, ok := d.commandBuffer(h)
		if !ok {
			return invalid("command buffer", gfx.Handle(h))
		}
		commandBuffers[i] = cb
	}
	wait, err := d.semaphoreList(info.Wait)
	if err != nil {
		return err
	}
	signal, err := d.semaphoreList(info.Signal)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(wait))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	fence := vk.NullFence
	if info.Fence != (gfx.Fence{}) {
		f, ok := d.fences.Get(gfx.Handle(info.Fence))
		if !ok {
			return invalid("fence", gfx.Handle(info.Fence))
		}
		fence = f
	}

	submitInfo := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}
	return result(vk.QueueSubmit(d.queue(q), 1, submitInfo, fence), "vk.QueueSubmit()")
}

// WaitQueueIdle implements gfx.Device.
func (d *Device) WaitQueueIdle(q gfx.Queue) error {
	return result(vk.QueueWaitIdle(d.queue(q)), "vk.QueueWaitIdle()")
}

// WaitIdle implements gfx.Device.
func (d *Device) WaitIdle() error {
	return result(vk.DeviceWaitIdle(d.device), "vk.DeviceWaitIdle()")
}
