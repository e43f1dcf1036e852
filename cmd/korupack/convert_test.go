// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/asset"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quad = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <library_geometries>
    <geometry id="Quad-mesh" name="Quad">
      <mesh>
        <source id="Quad-mesh-positions">
          <float_array id="Quad-mesh-positions-array" count="12">0 0 0 1 0 0 1 1 0 0 1 0</float_array>
          <technique_common><accessor source="#Quad-mesh-positions-array" count="4" stride="3"/></technique_common>
        </source>
        <vertices id="Quad-mesh-vertices">
          <input semantic="POSITION" source="#Quad-mesh-positions"/>
        </vertices>
        <triangles count="2">
          <input semantic="VERTEX" source="#Quad-mesh-vertices" offset="0"/>
          <p>0 1 2 0 2 3</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func writeFile(t *testing.T, root, name string, content []byte) {
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, ioutil.WriteFile(p, content, 0644))
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPlan(t *testing.T) {
	cases := map[string]string{
		filepath.Join("tex", "albedo.PNG"):          filepath.Join("tex", "albedo.texi"),
		filepath.Join("m", "cube.dae"):              filepath.Join("m", "cube.mesh"),
		filepath.Join("mat", "stone.material.json"): filepath.Join("mat", "stone.matx"),
		"pair.prefab.json":                          "pair.prfb",
	}
	for src, want := range cases {
		dst, convert, ok := plan(src)
		require.True(t, ok, src)
		assert.NotNil(t, convert)
		assert.Equal(t, want, dst)
	}
	_, _, ok := plan("readme.txt")
	assert.False(t, ok)
}

func TestPack(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, in, "textures/albedo.png", pngBytes(t, 4, 2))
	writeFile(t, in, "meshes/quad.dae", []byte(quad))
	writeFile(t, in, "materials/stone.material.json",
		[]byte(`{"textures": {"albedo": "textures/albedo.texi"}, "transparency": "masked"}`))
	writeFile(t, in, "prefabs/pair.prefab.json", []byte(`{
		"nodeparents": {"2": 1},
		"nodematrices": {"1": 0, "2": 1},
		"nodemeshes": {"2": {"meshpath": "meshes/quad.mesh", "matpath": "materials/stone.matx"}},
		"matrices": [
			[1,0,0,0, 0,1,0,0, 0,0,1,0, 0,0,0,1],
			[1,0,0,0, 0,1,0,0, 0,0,1,0, 3,0,0,1]
		]
	}`))
	writeFile(t, in, "readme.txt", []byte("not an asset"))

	logger, _ := test.NewNullLogger()
	p := &Packer{In: in, Out: out, Compression: asset.CompressionLZ4, Workers: 2, Log: logger}
	stats, err := p.Pack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Converted: 4, Skipped: 1}, stats)

	a, err := asset.Load(filepath.Join(out, "textures", "albedo.texi"))
	require.NoError(t, err)
	tex, err := asset.ParseTextureInfo(a)
	require.NoError(t, err)
	assert.EqualValues(t, 4, tex.Width)
	assert.EqualValues(t, 2, tex.Height)
	pixels := make([]byte, tex.Size)
	require.NoError(t, asset.UnpackTexture(tex, a.Binary, pixels))
	assert.Equal(t, []byte{255, 0, 0, 255}, pixels[4:8])

	a, err = asset.Load(filepath.Join(out, "meshes", "quad.mesh"))
	require.NoError(t, err)
	mesh, err := asset.ParseMeshInfo(a)
	require.NoError(t, err)
	assert.EqualValues(t, 4, mesh.VertexCount())
	assert.EqualValues(t, 6, mesh.IndexCount())

	a, err = asset.Load(filepath.Join(out, "materials", "stone.matx"))
	require.NoError(t, err)
	mat, err := asset.ParseMaterialInfo(a)
	require.NoError(t, err)
	assert.Equal(t, asset.Masked, mat.Transparency)
	assert.Equal(t, []string{"textures/albedo.texi"}, mat.TexturePaths())

	a, err = asset.Load(filepath.Join(out, "prefabs", "pair.prfb"))
	require.NoError(t, err)
	prefab, err := asset.ParsePrefab(a)
	require.NoError(t, err)
	require.Len(t, prefab.Matrices, 2)
	assert.Equal(t, glm.Translate3D(3, 0, 0), prefab.Local(2))
	assert.Equal(t, "meshes/quad.mesh", prefab.NodeMeshes[2].Mesh)
}

func TestPackStopsOnBadInput(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, in, "broken.png", []byte("not a png"))

	logger, _ := test.NewNullLogger()
	p := &Packer{In: in, Out: out, Log: logger}
	_, err := p.Pack(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")
}
