// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// Backend is a Vulkan instance and the physical devices it sees.
type Backend struct {
	cfg    Config
	logger logrus.FieldLogger

	instance         vk.Instance
	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
}

// New loads Vulkan and creates an instance.
func New(cfg Config, logger logrus.FieldLogger) (*Backend, error) {
	if cfg.ProcAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(cfg.ProcAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	extensions := safeStrings(cfg.InstanceExtensions)
	var layers []string
	if cfg.Validation {
		layers = append(layers, safeString(ValidationLayer))
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        cfg.applicationInfo(),
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := result(vk.CreateInstance(&instanceInfo, nil, &instance), "vk.CreateInstance()"); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	devices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	b := &Backend{
		cfg:              cfg,
		logger:           componentLogger(logger),
		instance:         instance,
		availableDevices: devices,
	}
	b.logger.WithFields(logrus.Fields{
		"devices":    len(devices),
		"validation": cfg.Validation,
	}).Info("Vulkan instance created")
	return b, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := result(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := result(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	return devices[:deviceCount], nil
}

// Instance returns the vk.Instance, windowing layers need it to create surfaces.
func (b *Backend) Instance() vk.Instance {
	return b.instance
}

// Adapters implements gfx.Backend.
func (b *Backend) Adapters() ([]gfx.AdapterInfo, error) {
	infos := make([]gfx.AdapterInfo, 0, len(b.availableDevices))
	for _, pd := range b.availableDevices {
		info, err := adapterInfo(pd)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func adapterInfo(pd vk.PhysicalDevice) (gfx.AdapterInfo, error) {
	var info gfx.AdapterInfo

	var numDeviceExtensions uint32
	if err := result(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil), "vk.EnumerateDeviceExtensionProperties()"); err != nil {
		return info, err
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if err := result(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt), "vk.EnumerateDeviceExtensionProperties()"); err != nil {
		return info, err
	}
	for _, ext := range deviceExt[:numDeviceExtensions] {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memoryProperties)
	memoryProperties.Deref()
	for i := uint32(0); i < memoryProperties.MemoryHeapCount; i++ {
		memoryProperties.MemoryHeaps[i].Deref()
		heap := memoryProperties.MemoryHeaps[i]
		if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			info.Memory += uint64(heap.Size)
		}
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	props.Limits.Deref()
	info.Name = vk.ToString(props.DeviceName[:])
	info.VendorID = props.VendorID
	info.DeviceID = props.DeviceID
	info.DriverVersion = props.DriverVersion
	info.Discrete = props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
	info.MaxSamples = gfx.MaxSampleCount(gfx.SampleCount(props.Limits.FramebufferColorSampleCounts & props.Limits.FramebufferDepthSampleCounts))
	info.MinUniformAlignment = uint64(props.Limits.MinUniformBufferOffsetAlignment)
	info.MinStorageAlignment = uint64(props.Limits.MinStorageBufferOffsetAlignment)

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()
	info.MultiDrawIndirect = features.MultiDrawIndirect.B()

	return info, nil
}

// queueFamilies finds a graphics family and a family that can present to
// surface, preferring one family that does both.
func queueFamilies(pd vk.PhysicalDevice, surface vk.Surface) (graphics, present uint32, err error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, 0, errors.Wrap(gfx.ErrNoSuitableAdapter, "no queue families on adapter")
	}
	props := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, props)

	var graphicsFound, presentFound bool
	for i := uint32(0); i < queueFamilyCount; i++ {
		props[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &supportsPresent)
		isGraphics := props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0

		if isGraphics && supportsPresent.B() {
			return i, i, nil
		}
		if isGraphics && !graphicsFound {
			graphics, graphicsFound = i, true
		}
		if supportsPresent.B() && !presentFound {
			present, presentFound = i, true
		}
	}
	if !graphicsFound {
		return 0, 0, errors.Wrap(gfx.ErrNoSuitableAdapter, "no graphics queue family")
	}
	if !presentFound {
		return 0, 0, errors.Wrap(gfx.ErrNoSuitableAdapter, "no queue family can present to the surface")
	}
	return graphics, present, nil
}

// Open implements gfx.Backend. The backend takes ownership of surface.
func (b *Backend) Open(adapter int, surface gfx.Surface) (gfx.Device, error) {
	if adapter < 0 || adapter >= len(b.availableDevices) {
		return nil, errors.Wrapf(gfx.ErrNoSuitableAdapter, "adapter %d of %d", adapter, len(b.availableDevices))
	}
	if surface == 0 {
		return nil, errors.New("vkr: no surface to present to")
	}
	vkSurface := vk.SurfaceFromPointer(uintptr(surface))
	if b.surface != vk.NullSurface && b.surface != vkSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
	}
	b.surface = vkSurface

	pd := b.availableDevices[adapter]
	info, err := adapterInfo(pd)
	if err != nil {
		return nil, err
	}
	graphics, present, err := queueFamilies(pd, vkSurface)
	if err != nil {
		return nil, err
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	for _, ext := range b.cfg.DeviceExtensions {
		if safeString(ext) != safeString(vk.KhrSwapchainExtensionName) {
			extensions = append(extensions, ext)
		}
	}
	extensions = safeStrings(extensions)

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if present != graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: present,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var supported vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &supported)
	supported.Deref()

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			MultiDrawIndirect: supported.MultiDrawIndirect,
			SamplerAnisotropy: supported.SamplerAnisotropy,
		}},
	}

	var vkDevice vk.Device
	if err := result(vk.CreateDevice(pd, &dci, nil, &vkDevice), "vk.CreateDevice()"); err != nil {
		return nil, err
	}

	d := newDevice(pd, vkDevice, vkSurface, info, graphics, present, b.logger)
	d.anisotropy = supported.SamplerAnisotropy.B()
	d.logger.WithFields(logrus.Fields{
		"adapter":  info.Name,
		"graphics": graphics,
		"present":  present,
	}).Info("Vulkan device created")
	return d, nil
}

// Release implements gfx.Backend.
func (b *Backend) Release() {
	if b == nil || b.instance == nil {
		return
	}
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
		b.surface = vk.NullSurface
	}
	b.availableDevices = nil
	vk.DestroyInstance(b.instance, nil)
	b.instance = nil
}
