// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeSPIRV is a word aligned blob starting with the SPIR-V magic.
func fakeSPIRV() []byte {
	return []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
}

// directFrames runs transfers on a single pool, outside of any frame.
type directFrames struct {
	device   gfx.Device
	pool     gfx.CommandPool
	deletion DeletionQueue
}

func newDirectFrames(t *testing.T, dev gfx.Device) *directFrames {
	pool, err := dev.CreateCommandPool(gfx.QueueTransfer, true)
	require.NoError(t, err)
	return &directFrames{device: dev, pool: pool}
}

func (f *directFrames) Transfer(record func(gfx.CommandBuffer) error) error {
	return submitOneShot(f.device, f.pool, record)
}

func (f *directFrames) Deletions() *DeletionQueue {
	return &f.deletion
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func textureAsset(t *testing.T, name string, w, h uint32, compression asset.Compression) []byte {
	pixels := make([]byte, w*h*4)
	for i := range pixels {
		pixels[i] = byte(i % 7)
	}
	a, err := asset.PackTexture(asset.TextureInfo{Name: name, Width: w, Height: h, Compression: compression}, pixels)
	require.NoError(t, err)
	return a.Bytes()
}

func meshAsset(t *testing.T, name string, format asset.VertexFormat, vertices, indices int) []byte {
	vbo := make([]byte, uint64(vertices)*format.Stride())
	ibo := make([]byte, indices*4)
	for i := 0; i < indices; i++ {
		ibo[i*4] = byte(i % vertices)
	}
	a, err := asset.PackMesh(asset.MeshInfo{Name: name, Format: format, Compression: asset.CompressionLZ4}, vbo, ibo)
	require.NoError(t, err)
	return a.Bytes()
}

func materialAsset(t *testing.T, textures map[string]string, transparency asset.Transparency) []byte {
	a, err := asset.PackMaterial(asset.MaterialInfo{Textures: textures, Transparency: transparency})
	require.NoError(t, err)
	return a.Bytes()
}

// testSource holds the default shaders and a couple of assets.
func testSource(t *testing.T) asset.MemSource {
	return asset.MemSource{
		DefaultVertexShader:    fakeSPIRV(),
		DefaultFragmentShader:  fakeSPIRV(),
		"textures/albedo.texi": textureAsset(t, "albedo", 4, 4, asset.CompressionLZ4),
		"textures/normal.texi": textureAsset(t, "normal", 8, 2, asset.CompressionNone),
		"meshes/cube.mesh":     meshAsset(t, "cube", asset.FormatPosColNorUV, 8, 36),
		"meshes/quad.mesh":     meshAsset(t, "quad", asset.FormatPosNorUV, 4, 6),
		"materials/stone.matx": materialAsset(t, map[string]string{
			"normal": "textures/normal.texi",
			"albedo": "textures/albedo.texi",
		}, asset.Opaque),
		"materials/glass.matx": materialAsset(t, map[string]string{
			"albedo": "textures/albedo.texi",
		}, asset.Transparent),
	}
}
