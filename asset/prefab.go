// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const matrixSize = 16 * 4

// MeshNode is the renderable part of a prefab node.
type MeshNode struct {
	Mesh     string `json:"meshpath"`
	Material string `json:"matpath"`
}

// PrefabInfo is a node hierarchy. Node IDs key every map, a node without
// a parent entry is a root. Matrices are stored in the blob and indexed
// by NodeMatrices.
type PrefabInfo struct {
	NodeNames    map[uint64]string   `json:"nodenames"`
	NodeParents  map[uint64]uint64   `json:"nodeparents"`
	NodeMatrices map[uint64]int      `json:"nodematrices"`
	NodeMeshes   map[uint64]MeshNode `json:"nodemeshes"`
	MatricesSize uint64              `json:"matricessize"`
	Compression  Compression         `json:"compression"`

	Matrices []mgl32.Mat4 `json:"-"`
}

// Local returns the local transform of a node, identity when it has none.
func (p PrefabInfo) Local(node uint64) mgl32.Mat4 {
	if i, ok := p.NodeMatrices[node]; ok && i >= 0 && i < len(p.Matrices) {
		return p.Matrices[i]
	}
	return mgl32.Ident4()
}

// PackPrefab builds a prefab asset, compressing the matrices when asked.
func PackPrefab(info PrefabInfo) (Asset, error) {
	for node, i := range info.NodeMatrices {
		if i < 0 || i >= len(info.Matrices) {
			return Asset{}, errors.Newf("prefab node %d references matrix %d of %d", node, i, len(info.Matrices))
		}
	}
	raw := make([]byte, len(info.Matrices)*matrixSize)
	for i, m := range info.Matrices {
		for j, f := range m {
			binary.LittleEndian.PutUint32(raw[i*matrixSize+j*4:], math.Float32bits(f))
		}
	}
	blob, mode, err := pack(info.Compression, raw)
	if err != nil {
		return Asset{}, err
	}
	info.MatricesSize = uint64(len(raw))
	info.Compression = mode
	return newAsset(TypePrefab, info, blob)
}

// ParsePrefab reads a prefab asset including its matrices.
func ParsePrefab(a Asset) (PrefabInfo, error) {
	if err := a.expect(TypePrefab); err != nil {
		return PrefabInfo{}, err
	}
	var info PrefabInfo
	if err := a.decodeJSON(&info); err != nil {
		return PrefabInfo{}, err
	}
	if info.MatricesSize%matrixSize != 0 || info.MatricesSize > maxPayload {
		return PrefabInfo{}, errors.Wrapf(ErrFormat, "matrices of %d bytes", info.MatricesSize)
	}
	info.Compression = info.Compression.normalize()

	raw := make([]byte, info.MatricesSize)
	if err := unpack(info.Compression, a.Binary, raw); err != nil {
		return PrefabInfo{}, errors.Wrap(err, "prefab matrices")
	}
	info.Matrices = make([]mgl32.Mat4, len(raw)/matrixSize)
	for i := range info.Matrices {
		for j := range info.Matrices[i] {
			info.Matrices[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*matrixSize+j*4:]))
		}
	}
	for node, i := range info.NodeMatrices {
		if i < 0 || i >= len(info.Matrices) {
			return PrefabInfo{}, errors.Wrapf(ErrFormat, "node %d references matrix %d of %d", node, i, len(info.Matrices))
		}
	}
	return info, nil
}
