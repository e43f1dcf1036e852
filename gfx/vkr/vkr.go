// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx.Backend and gfx.Device on Vulkan.
// Handles handed out by a Device index arenas of the underlying vk objects.
package vkr

import (
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// ValidationLayer is enabled when Config.Validation is set.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// Config configures instance and device creation.
type Config struct {
	ApplicationName string

	// ProcAddr is the vkGetInstanceProcAddr of the windowing layer,
	// the system loader is used when nil.
	ProcAddr unsafe.Pointer

	// InstanceExtensions usually come from the windowing layer.
	InstanceExtensions []string
	DeviceExtensions   []string
	Validation         bool
}

func (c Config) applicationInfo() *vk.ApplicationInfo {
	name := c.ApplicationName
	if name == "" {
		name = "Koru3D"
	}
	return &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(name),
		PEngineName:        "Koru3D\x00",
	}
}

// result turns a failed vk.Result into an error naming the call. Results
// callers are expected to act on are marked with the gfx sentinels.
func result(res vk.Result, call string) error {
	if res == vk.Success {
		return nil
	}
	var sentinel error
	switch res {
	case vk.Suboptimal:
		sentinel = gfx.ErrSuboptimal
	case vk.ErrorOutOfDate:
		sentinel = gfx.ErrOutOfDate
	case vk.ErrorFragmentedPool:
		sentinel = gfx.ErrFragmentedPool
	case vk.ErrorOutOfPoolMemory:
		sentinel = gfx.ErrOutOfPoolMemory
	case vk.ErrorDeviceLost:
		sentinel = gfx.ErrDeviceLost
	}
	err := vk.Error(res)
	if err == nil {
		err = errors.Newf("vulkan result %d", res)
	}
	err = errors.Wrap(err, call)
	if sentinel != nil {
		err = errors.Mark(err, sentinel)
	}
	return err
}

// sliceUint32 reslices SPIR-V bytes into the words vk.CreateShaderModule takes.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

func componentLogger(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", "vkr")
}
