// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/gfxtest"
	"github.com/koru3d/lumen/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeshCache(t *testing.T) (*gfxtest.Device, *directFrames, *MeshCache) {
	dev := gfxtest.NewDevice()
	frames := newDirectFrames(t, dev)
	return dev, frames, NewMeshCache(dev, testSource(t), frames, nullLogger())
}

func TestMeshCacheCreate(t *testing.T) {
	dev, _, cache := newTestMeshCache(t)

	h, err := cache.Create("meshes/cube.mesh")
	require.NoError(t, err)
	m, ok := cache.Get(h)
	require.True(t, ok)
	assert.Equal(t, uint32(8), m.VertexCount)
	assert.Equal(t, uint32(36), m.IndexCount)

	vbo, ok := dev.Buffer(m.Vertices)
	require.True(t, ok)
	assert.Equal(t, gfx.MemoryDeviceLocal, vbo.Info.Memory)
	assert.NotZero(t, vbo.Info.Usage&gfx.BufferVertex)
	assert.Equal(t, uint64(8*model.VertexSize), vbo.Info.Size)

	ibo, ok := dev.Buffer(m.Indices)
	require.True(t, ok)
	assert.NotZero(t, ibo.Info.Usage&gfx.BufferIndex)
	assert.Equal(t, byte(1), ibo.Data[4], "indices are copied through staging")

	assert.Equal(t, 2, dev.CountOps(gfxtest.OpCopyBuffer))
	assert.Equal(t, 2, dev.Live(gfxtest.KindBuffer), "staging buffers are released")
	assert.Empty(t, dev.Violations)
}

func TestMeshCacheWidensPosNorUV(t *testing.T) {
	dev, _, cache := newTestMeshCache(t)
	h, err := cache.Create("meshes/quad.mesh")
	require.NoError(t, err)

	m, _ := cache.Get(h)
	assert.Equal(t, uint32(4), m.VertexCount)
	vbo, _ := dev.Buffer(m.Vertices)
	assert.Equal(t, uint64(4*model.VertexSize), vbo.Info.Size)
}

func TestMeshCacheMemoises(t *testing.T) {
	dev, _, cache := newTestMeshCache(t)
	h1, err := cache.Create("meshes/cube.mesh")
	require.NoError(t, err)
	h2, err := cache.Create("meshes/cube.mesh")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 2, dev.CountOps(gfxtest.OpCopyBuffer))
}

func TestMeshCacheFailureCleansUp(t *testing.T) {
	dev, _, cache := newTestMeshCache(t)
	dev.Fail("WaitQueueIdle")

	_, err := cache.Create("meshes/cube.mesh")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, dev.Live(gfxtest.KindBuffer))
	assert.Empty(t, dev.Violations)
}

func TestMeshCacheRejectsPartialData(t *testing.T) {
	_, _, cache := newTestMeshCache(t)
	_, err := cache.CreateFromData("bad", make([]byte, model.VertexSize+1), make([]byte, 12))
	assert.Error(t, err)
	_, err = cache.CreateFromData("empty", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestMeshCacheDestroyDefers(t *testing.T) {
	dev, frames, cache := newTestMeshCache(t)
	h, err := cache.Create("meshes/cube.mesh")
	require.NoError(t, err)

	require.NoError(t, cache.Destroy(h))
	assert.Equal(t, 2, dev.Live(gfxtest.KindBuffer))
	frames.deletion.Flush(dev)
	assert.Equal(t, 0, dev.Live(gfxtest.KindBuffer))

	_, err = cache.Create("meshes/cube.mesh")
	require.NoError(t, err)
	cache.DestroyAll()
	assert.Equal(t, 0, dev.Live(gfxtest.KindBuffer))
	assert.Equal(t, 0, cache.Len())
}
