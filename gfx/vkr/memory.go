// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// ErrNoMemoryType is returned when no memory type satisfies a request.
var ErrNoMemoryType = errors.New("suitable memory type not found")

// MemoryAllocator hands out device memory for buffers and images,
// one allocation per resource.
type MemoryAllocator struct {
	device vk.Device
	types  []vk.MemoryPropertyFlags
}

// NewMemoryAllocator reads the memory types of the physical device.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	types := make([]vk.MemoryPropertyFlags, memProperties.MemoryTypeCount)
	for idx := range types {
		memProperties.MemoryTypes[idx].Deref()
		types[idx] = memProperties.MemoryTypes[idx].PropertyFlags
	}
	return &MemoryAllocator{
		device: device,
		types:  types,
	}
}

func memoryProperties(usage gfx.MemoryUsage) vk.MemoryPropertyFlags {
	if usage == gfx.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// findMemoryType returns the first type allowed by filter that has every
// property in want.
func findMemoryType(types []vk.MemoryPropertyFlags, filter uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	for idx, flags := range types {
		if filter&(1<<uint(idx)) != 0 && flags&want == want {
			return uint32(idx), nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %#x", filter, want)
}

// Malloc allocates memory that satisfies req.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, usage gfx.MemoryUsage) (vk.DeviceMemory, error) {
	memTypeIdx, err := findMemoryType(ma.types, req.MemoryTypeBits, memoryProperties(usage))
	if err != nil {
		return vk.NullDeviceMemory, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := result(vk.AllocateMemory(ma.device, &mai, nil, &memory), "vk.AllocateMemory()"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

// Free releases memory returned by Malloc.
func (ma *MemoryAllocator) Free(memory vk.DeviceMemory) {
	if memory != vk.NullDeviceMemory {
		vk.FreeMemory(ma.device, memory, nil)
	}
}
