// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the vertex and shader data layouts shared by the
// renderer, the asset packer and the scene loader.
package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/gfx"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Color  glm.Vec3
	Normal glm.Vec3
	UV     glm.Vec2
}

// VertexSize is the size of one Vertex in a vertex buffer.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// Uniform is the per frame global data bound at set 0.
type Uniform struct {
	ViewProjection glm.Mat4
}

// UniformSize is the unaligned size of Uniform.
const UniformSize = int(unsafe.Sizeof(Uniform{}))

// ObjectData is one entry of the object storage buffer bound at set 1.
type ObjectData struct {
	Model glm.Mat4
}

// ObjectDataSize is the size of one ObjectData entry.
const ObjectDataSize = int(unsafe.Sizeof(ObjectData{}))

// VertexLayout describes Vertex to the pipeline.
func VertexLayout() gfx.VertexLayout {
	return gfx.VertexLayout{
		Stride: uint32(VertexSize),
		Attributes: []gfx.VertexAttribute{
			{Location: 0, Format: gfx.FormatRGB32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.Pos))},
			{Location: 1, Format: gfx.FormatRGB32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.Color))},
			{Location: 2, Format: gfx.FormatRGB32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal))},
			{Location: 3, Format: gfx.FormatRG32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
		},
	}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes encodes the vertices as a little endian vertex buffer.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, 0, len(m.Vertices)*VertexSize)
	for _, v := range m.Vertices {
		out = appendFloats(out, v.Pos[:]...)
		out = appendFloats(out, v.Color[:]...)
		out = appendFloats(out, v.Normal[:]...)
		out = appendFloats(out, v.UV[:]...)
	}
	return out
}

// IndexBytes encodes the indices as a little endian 32 bit index buffer.
func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// MatrixBytes encodes matrices the way shaders read them.
func MatrixBytes(ms ...glm.Mat4) []byte {
	out := make([]byte, 0, len(ms)*64)
	for _, m := range ms {
		out = appendFloats(out, m[:]...)
	}
	return out
}

// WidenPosNorUV converts a vertex buffer of position, normal and uv into
// the engine layout, giving every vertex a white colour.
func WidenPosNorUV(raw []byte) ([]byte, error) {
	const narrow = 8 * 4
	if len(raw)%narrow != 0 {
		return nil, errors.Newf("vertex buffer of %d bytes is not a whole number of PosNorUV vertices", len(raw))
	}
	white := appendFloats(nil, 1, 1, 1)
	out := make([]byte, 0, len(raw)/narrow*VertexSize)
	for off := 0; off < len(raw); off += narrow {
		out = append(out, raw[off:off+12]...)
		out = append(out, white...)
		out = append(out, raw[off+12:off+narrow]...)
	}
	return out, nil
}

func appendFloats(b []byte, fs ...float32) []byte {
	var word [4]byte
	for _, f := range fs {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
		b = append(b, word[:]...)
	}
	return b
}
