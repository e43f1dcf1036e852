// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package scene_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/core"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/koru3d/lumen/scene"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func prefab(t *testing.T, info asset.PrefabInfo) []byte {
	a, err := asset.PackPrefab(info)
	require.NoError(t, err)
	return a.Bytes()
}

func source(t *testing.T) asset.MemSource {
	pixels := make([]byte, 4*4*4)
	tex, err := asset.PackTexture(asset.TextureInfo{Name: "albedo", Width: 4, Height: 4, Compression: asset.CompressionLZ4}, pixels)
	require.NoError(t, err)

	format := asset.FormatPosColNorUV
	mesh, err := asset.PackMesh(asset.MeshInfo{Name: "cube", Format: format, Compression: asset.CompressionLZ4},
		make([]byte, 8*format.Stride()), make([]byte, 36*4))
	require.NoError(t, err)

	mat, err := asset.PackMaterial(asset.MaterialInfo{
		Textures:     map[string]string{"albedo": "textures/albedo.texi"},
		Transparency: asset.Opaque,
	})
	require.NoError(t, err)

	return asset.MemSource{
		core.DefaultVertexShader:   spirv,
		core.DefaultFragmentShader: spirv,
		"textures/albedo.texi":     tex.Bytes(),
		"meshes/cube.mesh":         mesh.Bytes(),
		"materials/stone.matx":     mat.Bytes(),
	}
}

func newContext(t *testing.T, src asset.MemSource) *core.DeviceContext {
	logger, _ := test.NewNullLogger()
	ctx := core.NewDeviceContext(core.DefaultConfiguration(), gfxtest.NewBackend(), src, logger)
	require.NoError(t, ctx.BeforeWindowCreation())
	require.NoError(t, ctx.AfterWindowCreation(gfx.Surface(1), 640, 480))
	t.Cleanup(ctx.Destroy)
	return ctx
}

func TestWorldMatricesComposeParents(t *testing.T) {
	root := glm.Translate3D(1, 0, 0)
	child := glm.Translate3D(0, 2, 0)
	grandchild := glm.Scale3D(2, 2, 2)
	info := asset.PrefabInfo{
		NodeParents:  map[uint64]uint64{2: 1, 3: 2},
		NodeMatrices: map[uint64]int{1: 0, 2: 1, 3: 2},
		NodeMeshes:   map[uint64]asset.MeshNode{3: {Mesh: "m", Material: "x"}},
		Matrices:     []glm.Mat4{root, child, grandchild},
	}

	world, err := scene.WorldMatrices(info)
	require.NoError(t, err)
	require.Len(t, world, 3)
	assert.Equal(t, root, world[1])
	assert.True(t, root.Mul4(child).ApproxEqual(world[2]))
	assert.True(t, root.Mul4(child).Mul4(grandchild).ApproxEqual(world[3]))

	p := world[3].Mul4x1(glm.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-6)
	assert.InDelta(t, 2, p.Y(), 1e-6)
}

func TestWorldMatricesMissingParentAndMatrix(t *testing.T) {
	info := asset.PrefabInfo{
		NodeParents:  map[uint64]uint64{5: 99, 6: 7, 7: 5},
		NodeMatrices: map[uint64]int{5: 0},
		NodeMeshes:   map[uint64]asset.MeshNode{6: {}},
		Matrices:     []glm.Mat4{glm.Translate3D(0, 0, 3)},
	}
	world, err := scene.WorldMatrices(info)
	require.NoError(t, err)
	assert.Equal(t, glm.Translate3D(0, 0, 3), world[5])
	// Node 7 has no transform of its own.
	assert.True(t, glm.Translate3D(0, 0, 3).ApproxEqual(world[6]))
}

func TestWorldMatricesCycle(t *testing.T) {
	info := asset.PrefabInfo{
		NodeParents:  map[uint64]uint64{1: 2, 2: 1},
		NodeMatrices: map[uint64]int{1: 0, 2: 0},
		Matrices:     []glm.Mat4{glm.Ident4()},
	}
	_, err := scene.WorldMatrices(info)
	assert.True(t, errors.Is(err, scene.ErrCycle))
}

func TestInstantiate(t *testing.T) {
	src := source(t)
	src["prefabs/pair.prfb"] = prefab(t, asset.PrefabInfo{
		NodeNames:    map[uint64]string{1: "root", 2: "left", 3: "right"},
		NodeParents:  map[uint64]uint64{2: 1, 3: 1},
		NodeMatrices: map[uint64]int{1: 0, 2: 1, 3: 2},
		NodeMeshes: map[uint64]asset.MeshNode{
			3: {Mesh: "meshes/cube.mesh", Material: "materials/stone.matx"},
			2: {Mesh: "meshes/cube.mesh", Material: "materials/stone.matx"},
		},
		Compression: asset.CompressionLZ4,
		Matrices: []glm.Mat4{
			glm.Translate3D(0, 1, 0),
			glm.Translate3D(-1, 0, 0),
			glm.Translate3D(1, 0, 0),
		},
	})
	ctx := newContext(t, src)

	items, err := scene.Instantiate(ctx, "prefabs/pair.prfb")
	require.NoError(t, err)
	require.Len(t, items, 2)

	mesh, ok := ctx.Meshes().Lookup("meshes/cube.mesh")
	require.True(t, ok)
	material, ok := ctx.Materials().Lookup("materials/stone.matx")
	require.True(t, ok)
	for _, r := range items {
		assert.Equal(t, mesh, r.Mesh)
		assert.Equal(t, material, r.Material)
	}
	assert.Equal(t, 1, ctx.Meshes().Len())
	assert.Equal(t, 1, ctx.Materials().Len())

	assert.True(t, glm.Translate3D(-1, 1, 0).ApproxEqual(items[0].Transform))
	assert.True(t, glm.Translate3D(1, 1, 0).ApproxEqual(items[1].Transform))

	ctx.Renderer().Submit(items...)
	assert.Equal(t, 2, ctx.Renderer().Queued())
}

func TestInstantiateErrors(t *testing.T) {
	src := source(t)
	src["prefabs/broken.prfb"] = prefab(t, asset.PrefabInfo{
		NodeMeshes: map[uint64]asset.MeshNode{1: {Mesh: "meshes/missing.mesh", Material: "materials/stone.matx"}},
	})
	ctx := newContext(t, src)

	_, err := scene.Instantiate(ctx, "prefabs/none.prfb")
	assert.True(t, errors.Is(err, asset.ErrNotFound))

	_, err = scene.Instantiate(ctx, "prefabs/broken.prfb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 1")

	_, err = scene.Instantiate(ctx, "meshes/cube.mesh")
	assert.True(t, errors.Is(err, asset.ErrUnknownType))
}

func TestInstantiateBeforeWindow(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := core.NewDeviceContext(core.DefaultConfiguration(), gfxtest.NewBackend(), source(t), logger)
	_, err := scene.Instantiate(ctx, "prefabs/pair.prfb")
	assert.True(t, errors.Is(err, core.ErrNotInitialised))
}
