// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

//go:generate glslangValidator -V shaders/base.vert -o shaders/base.vert.spv
//go:generate glslangValidator -V shaders/base.frag -o shaders/base.frag.spv

import (
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/packr"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// Paths of the shaders the default material template is built from.
const (
	DefaultVertexShader   = "shaders/base.vert.spv"
	DefaultFragmentShader = "shaders/base.frag.spv"
)

// BoxSource serves the shaders compiled into the binary.
type BoxSource struct {
	box    packr.Box
	prefix string
}

// DefaultShaders returns the source of the built in shaders. Paths are
// looked up with their "shaders/" prefix. Only the GLSL sources are kept
// in the repository, the SPIR-V is produced by running go generate
// ./core with glslangValidator on the PATH before building.
func DefaultShaders() BoxSource {
	return BoxSource{box: packr.NewBox("./shaders"), prefix: "shaders/"}
}

// ReadFile implements asset.Source.
func (b BoxSource) ReadFile(name string) ([]byte, error) {
	name = path.Clean(name)
	if !strings.HasPrefix(name, b.prefix) {
		return nil, errors.Wrapf(asset.ErrNotFound, "%s", name)
	}
	name = strings.TrimPrefix(name, b.prefix)
	if !b.box.Has(name) {
		if src := strings.TrimSuffix(name, ".spv"); src != name && b.box.Has(src) {
			return nil, errors.WithHint(errors.Wrapf(asset.ErrNotFound, "%s not compiled", name),
				"run go generate ./core to compile the built in shaders")
		}
		return nil, errors.Wrapf(asset.ErrNotFound, "%s", name)
	}
	code, err := b.box.Find(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read built in shader %s", name)
	}
	return code, nil
}

// ShaderModuleCache creates one shader module per path.
type ShaderModuleCache struct {
	device gfx.ResourceDevice
	source asset.Source
	log    logrus.FieldLogger

	modules map[string]gfx.ShaderModule
}

// NewShaderModuleCache creates a cache reading SPIR-V from source.
func NewShaderModuleCache(device gfx.ResourceDevice, source asset.Source, logger logrus.FieldLogger) *ShaderModuleCache {
	return &ShaderModuleCache{
		device:  device,
		source:  source,
		log:     componentLogger(logger, "shaders"),
		modules: make(map[string]gfx.ShaderModule),
	}
}

// Create returns the module for path, compiling it on first request.
func (c *ShaderModuleCache) Create(p string) (gfx.ShaderModule, error) {
	if m, ok := c.modules[p]; ok {
		return m, nil
	}
	log := c.log.WithField("path", p)
	if shaderTypeFromPath(p) == UnknownShaderType {
		log.Warn("Shader type cannot be told from its name")
	}

	code, err := c.source.ReadFile(p)
	if err != nil {
		return gfx.ShaderModule{}, errors.Wrapf(err, "read shader %s", p)
	}
	if err := checkSPIRV(code); err != nil {
		return gfx.ShaderModule{}, errors.Wrapf(err, "shader %s", p)
	}
	m, err := c.device.CreateShaderModule(code)
	if err != nil {
		log.WithError(err).Error("Shader module creation failed")
		return gfx.ShaderModule{}, errors.Wrapf(err, "create shader %s", p)
	}
	c.modules[p] = m
	log.Debug("Shader module created")
	return m, nil
}

// Len returns the number of modules held.
func (c *ShaderModuleCache) Len() int {
	return len(c.modules)
}

// Destroy destroys every module.
func (c *ShaderModuleCache) Destroy() {
	for _, m := range c.modules {
		c.device.DestroyShaderModule(m)
	}
	c.modules = make(map[string]gfx.ShaderModule)
}
