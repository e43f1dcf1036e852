// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core owns the rendering device and the lifetime of everything
// created on it: frames in flight, the swapchain, deferred deletion and the
// caches that deduplicate descriptor layouts, shaders, pipelines, textures,
// meshes and materials. Everything here is driven from a single rendering
// goroutine, only DeviceContext.OnResize may be called from elsewhere.
package core

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// package errors
var (
	ErrFrameAbandoned   = errors.New("frame abandoned")
	ErrDuplicateBinding = errors.New("duplicate descriptor binding index")
	ErrNotInitialised   = errors.New("device context not initialised")
	ErrNoSurface        = errors.New("no presentation surface")
	ErrInvalidShader    = errors.New("not a SPIR-V module")
	ErrUnknownResource  = errors.New("unknown or evicted resource")
)

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

func componentLogger(logger logrus.FieldLogger, name string) logrus.FieldLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", name)
}
