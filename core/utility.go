// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"encoding/binary"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
)

const (
	shaderSuffix = ".spv"
	spirvMagic   = 0x07230203
)

// shaderTypeFromPath reads the shader type out of a file name. The name
// must have exactly three dot separated parts: the name of the shader,
// its type and the spv extension that marks it as compiled.
func shaderTypeFromPath(p string) ShaderType {
	base := path.Base(p)
	if !strings.HasSuffix(base, shaderSuffix) {
		return UnknownShaderType
	}
	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 {
		return UnknownShaderType
	}
	switch nodes[1] {
	case "vert":
		return VertexShaderType
	case "frag":
		return FragmentShaderType
	}
	return UnknownShaderType
}

// Stage returns the pipeline stage a shader of this type runs in.
func (t ShaderType) Stage() gfx.ShaderStage {
	switch t {
	case VertexShaderType:
		return gfx.StageVertex
	case FragmentShaderType:
		return gfx.StageFragment
	}
	return 0
}

// checkSPIRV makes sure code is word aligned and starts with the SPIR-V magic.
func checkSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return errors.Wrapf(ErrInvalidShader, "size %d is not a multiple of 4", len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return errors.Wrap(ErrInvalidShader, "bad magic")
	}
	return nil
}

// AlignedSize rounds size up to a power of two alignment. Zero alignment
// leaves size untouched.
func AlignedSize(size, alignment uint64) uint64 {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}

// mipLevels returns the length of a full mip chain for an image.
func mipLevels(width, height uint32) uint32 {
	largest := width
	if height > largest {
		largest = height
	}
	levels := uint32(1)
	for largest > 1 {
		largest >>= 1
		levels++
	}
	return levels
}

func halve(v uint32) uint32 {
	if v > 1 {
		return v / 2
	}
	return 1
}
