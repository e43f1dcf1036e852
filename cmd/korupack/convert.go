// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/model"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Suffixes of the JSON sources for materials and prefabs.
const (
	materialSuffix = ".material.json"
	prefabSuffix   = ".prefab.json"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// prefabSource is the JSON a prefab is authored in. Matrices are column
// major, like mgl32.Mat4.
type prefabSource struct {
	asset.PrefabInfo
	Matrices [][16]float32 `json:"matrices"`
}

// job converts one source file into one asset file.
type job struct {
	src, dst string
	convert  func(raw []byte, name string, c asset.Compression) (asset.Asset, error)
}

// Packer converts a tree of source files into asset containers.
type Packer struct {
	In, Out     string
	Compression asset.Compression
	Workers     int
	Log         logrus.FieldLogger
}

// Stats counts what a Pack call did.
type Stats struct {
	Converted int
	Skipped   int
}

func baseName(p string) string {
	base := filepath.Base(p)
	for _, suffix := range []string{materialSuffix, prefabSuffix} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// plan picks the conversion for a source path, relative to the input root.
func plan(rel string) (dst string, convert func([]byte, string, asset.Compression) (asset.Asset, error), ok bool) {
	lower := strings.ToLower(rel)
	stem := filepath.Join(filepath.Dir(rel), baseName(rel))
	switch {
	case strings.HasSuffix(lower, materialSuffix):
		return stem + ".matx", convertMaterial, true
	case strings.HasSuffix(lower, prefabSuffix):
		return stem + ".prfb", convertPrefab, true
	case strings.HasSuffix(lower, ".dae"):
		return stem + ".mesh", convertMesh, true
	case imageExtensions[filepath.Ext(lower)]:
		return stem + ".texi", convertTexture, true
	}
	return "", nil, false
}

func convertTexture(raw []byte, name string, c asset.Compression) (asset.Asset, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return asset.Asset{}, errors.Wrap(err, "decode image")
	}
	bounds := img.Bounds()
	return asset.PackTexture(asset.TextureInfo{
		Name:        name + "." + format,
		Width:       uint32(bounds.Dx()),
		Height:      uint32(bounds.Dy()),
		Format:      asset.FormatRGBA8,
		Compression: c,
	}, asset.Pixels(img))
}

func convertMesh(raw []byte, name string, c asset.Compression) (asset.Asset, error) {
	mesh, err := model.ImportCollada(raw)
	if err != nil {
		return asset.Asset{}, err
	}
	return asset.PackMesh(asset.MeshInfo{
		Name:        name,
		Format:      asset.FormatPosColNorUV,
		Compression: c,
	}, mesh.VertexBytes(), mesh.IndexBytes())
}

func convertMaterial(raw []byte, _ string, _ asset.Compression) (asset.Asset, error) {
	var info asset.MaterialInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return asset.Asset{}, errors.Wrap(err, "parse material")
	}
	if len(info.Textures) == 0 {
		return asset.Asset{}, errors.New("material without textures")
	}
	return asset.PackMaterial(info)
}

func convertPrefab(raw []byte, _ string, c asset.Compression) (asset.Asset, error) {
	var src prefabSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return asset.Asset{}, errors.Wrap(err, "parse prefab")
	}
	info := src.PrefabInfo
	info.Compression = c
	info.Matrices = make([]glm.Mat4, len(src.Matrices))
	for i, m := range src.Matrices {
		info.Matrices[i] = glm.Mat4(m)
	}
	return asset.PackPrefab(info)
}

func (p *Packer) jobs() ([]job, int, error) {
	var jobs []job
	skipped := 0
	err := filepath.Walk(p.In, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.In, path)
		if err != nil {
			return err
		}
		dst, convert, ok := plan(rel)
		if !ok {
			p.Log.WithField("path", rel).Debug("Skipping file of unknown type")
			skipped++
			return nil
		}
		jobs = append(jobs, job{src: path, dst: filepath.Join(p.Out, dst), convert: convert})
		return nil
	})
	return jobs, skipped, err
}

func (p *Packer) run(j job) error {
	raw, err := ioutil.ReadFile(j.src)
	if err != nil {
		return err
	}
	a, err := j.convert(raw, baseName(j.src), p.Compression)
	if err != nil {
		return errors.Wrapf(err, "convert %s", j.src)
	}
	if err := os.MkdirAll(filepath.Dir(j.dst), 0755); err != nil {
		return err
	}
	if err := asset.Save(j.dst, a); err != nil {
		return err
	}
	p.Log.WithFields(logrus.Fields{
		"path":  j.dst,
		"type":  a.Type,
		"bytes": len(a.Binary),
	}).Debug("Converted")
	return nil
}

// Pack converts every recognised file under In. The first failure
// cancels the remaining conversions.
func (p *Packer) Pack(ctx context.Context) (Stats, error) {
	if p.Log == nil {
		p.Log = logrus.StandardLogger()
	}
	jobs, skipped, err := p.jobs()
	if err != nil {
		return Stats{}, errors.Wrapf(err, "walk %s", p.In)
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.run(j)
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return Stats{Converted: len(jobs), Skipped: skipped}, nil
}
