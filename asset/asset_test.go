// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/utility/kar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	a := Asset{Type: TypeMaterial, JSON: []byte(`{"textures":{}}`), Binary: []byte{1, 2, 3}}
	var buf bytes.Buffer
	require.NoError(t, a.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeMaterial, got.Type)
	assert.Equal(t, uint32(Version), got.Version)
	assert.Equal(t, a.JSON, got.JSON)
	assert.Equal(t, a.Binary, got.Binary)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("TEX"))
	assert.True(t, errors.Is(err, ErrFormat))

	a := Asset{Type: TypeTexture, Version: 9}
	_, err = Decode(bytes.NewReader(a.Bytes()))
	assert.True(t, errors.Is(err, ErrVersion))

	truncated := Asset{Type: TypeMesh, JSON: []byte("{}"), Binary: make([]byte, 64)}.Bytes()
	_, err = Decode(bytes.NewReader(truncated[:len(truncated)-10]))
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestTextureCompressed(t *testing.T) {
	pixels := make([]byte, 16*16*4)
	for i := range pixels {
		pixels[i] = byte(i / 64)
	}
	a, err := PackTexture(TextureInfo{Name: "flat", Width: 16, Height: 16, Compression: CompressionLZ4}, pixels)
	require.NoError(t, err)

	info, err := ParseTextureInfo(a)
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, info.Compression)
	assert.Less(t, len(a.Binary), len(pixels))

	dst := make([]byte, info.Size)
	require.NoError(t, UnpackTexture(info, a.Binary, dst))
	assert.Equal(t, pixels, dst)
}

func TestTextureIncompressibleFallsBack(t *testing.T) {
	pixels := make([]byte, 4)
	copy(pixels, []byte{0x13, 0x87, 0xfe, 0x02})
	a, err := PackTexture(TextureInfo{Name: "dot", Width: 1, Height: 1, Compression: CompressionLZ4}, pixels)
	require.NoError(t, err)

	info, err := ParseTextureInfo(a)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, info.Compression)
	assert.Equal(t, pixels, a.Binary)
}

func TestTextureWrongType(t *testing.T) {
	a, err := PackMaterial(MaterialInfo{})
	require.NoError(t, err)
	_, err = ParseTextureInfo(a)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestPixelsRebasesBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(2, 3, 4, 4))
	img.Set(3, 3, color.NRGBA{R: 255, A: 255})

	pixels := Pixels(img)
	require.Len(t, pixels, 2*1*4)
	assert.Equal(t, []byte{0, 0, 0, 0, 255, 0, 0, 255}, pixels)
}

func TestMeshSplit(t *testing.T) {
	vbo := make([]byte, 3*FormatPosColNorUV.Stride())
	for i := range vbo {
		vbo[i] = byte(i % 7)
	}
	ibo := []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}

	for _, c := range []Compression{CompressionNone, CompressionLZ4} {
		a, err := PackMesh(MeshInfo{Name: "tri", Format: FormatPosColNorUV, Compression: c}, vbo, ibo)
		require.NoError(t, err)

		info, err := ParseMeshInfo(a)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), info.VertexCount())
		assert.Equal(t, uint64(3), info.IndexCount())

		gotV := make([]byte, info.VertexBufferSize)
		gotI := make([]byte, info.IndexBufferSize)
		require.NoError(t, UnpackMesh(info, a.Binary, gotV, gotI))
		assert.Equal(t, vbo, gotV)
		assert.Equal(t, ibo, gotI)
	}
}

func TestMeshRejectsPartialVertices(t *testing.T) {
	_, err := PackMesh(MeshInfo{Name: "bad", Format: FormatPosNorUV}, make([]byte, 10), nil)
	assert.Error(t, err)
}

func TestMaterialRoleOrder(t *testing.T) {
	info := MaterialInfo{Textures: map[string]string{
		"normal":  "tex/n.tex",
		"diffuse": "tex/d.tex",
		"rough":   "tex/r.tex",
	}}
	a, err := PackMaterial(info)
	require.NoError(t, err)

	parsed, err := ParseMaterialInfo(a)
	require.NoError(t, err)
	assert.Equal(t, Opaque, parsed.Transparency)
	assert.Equal(t, []string{"diffuse", "normal", "rough"}, parsed.Roles())
	assert.Equal(t, []string{"tex/d.tex", "tex/n.tex", "tex/r.tex"}, parsed.TexturePaths())
}

func TestPrefabMatrices(t *testing.T) {
	info := PrefabInfo{
		NodeNames:    map[uint64]string{1: "root", 2: "child"},
		NodeParents:  map[uint64]uint64{2: 1},
		NodeMatrices: map[uint64]int{1: 0, 2: 1},
		NodeMeshes:   map[uint64]MeshNode{2: {Mesh: "m.mesh", Material: "m.mat"}},
		Matrices:     []mgl32.Mat4{mgl32.Translate3D(1, 2, 3), mgl32.Scale3D(2, 2, 2)},
		Compression:  CompressionLZ4,
	}
	a, err := PackPrefab(info)
	require.NoError(t, err)

	got, err := ParsePrefab(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*matrixSize), got.MatricesSize)
	assert.Equal(t, info.Matrices, got.Matrices)
	assert.Equal(t, "child", got.NodeNames[2])
	assert.Equal(t, uint64(1), got.NodeParents[2])
	assert.Equal(t, "m.mat", got.NodeMeshes[2].Material)
	assert.Equal(t, mgl32.Ident4(), got.Local(42))
}

func TestPrefabBadMatrixIndex(t *testing.T) {
	_, err := PackPrefab(PrefabInfo{NodeMatrices: map[uint64]int{1: 3}})
	assert.Error(t, err)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	a, err := PackMaterial(MaterialInfo{Textures: map[string]string{"diffuse": "d.tex"}})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mat"), 0o755))
	require.NoError(t, Save(filepath.Join(dir, "mat", "a.mat"), a))

	src := DirSource{Root: dir}
	got, err := Open(src, "mat/a.mat")
	require.NoError(t, err)
	assert.Equal(t, TypeMaterial, got.Type)

	_, err = Open(src, "mat/missing.mat")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestArchiveSource(t *testing.T) {
	a, err := PackMaterial(MaterialInfo{})
	require.NoError(t, err)

	builder, err := kar.NewBuilder(kar.Header{Author: "test", DateCreated: time.Now().Unix(), Version: 1})
	require.NoError(t, err)
	defer builder.Close()
	require.NoError(t, builder.Add("mat/a.mat", bytes.NewReader(a.Bytes())))

	file := filepath.Join(t.TempDir(), "assets.kar")
	f, err := os.Create(file)
	require.NoError(t, err)
	_, err = builder.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src, err := OpenArchive(file)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, []string{"mat/a.mat"}, src.Names())
	got, err := Open(src, "mat/a.mat")
	require.NoError(t, err)
	assert.Equal(t, TypeMaterial, got.Type)

	_, err = src.ReadFile("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMultiSourceFallsThrough(t *testing.T) {
	first := MemSource{"a": []byte("one")}
	second := MemSource{"a": []byte("two"), "b": []byte("three")}
	src := MultiSource{first, second}

	raw, err := src.ReadFile("a")
	require.NoError(t, err)
	assert.Equal(t, "one", string(raw))

	raw, err = src.ReadFile("b")
	require.NoError(t, err)
	assert.Equal(t, "three", string(raw))

	_, err = src.ReadFile("c")
	assert.True(t, errors.Is(err, ErrNotFound))
}
