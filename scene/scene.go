// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package scene turns prefab assets into renderables.
package scene

import (
	"sort"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/core"
)

// ErrCycle is returned for prefabs whose parent links form a loop.
var ErrCycle = errors.New("prefab node hierarchy has a cycle")

// WorldMatrices composes the local transform of every node that has a
// transform or a mesh with the transforms of its parents. Missing
// parents end the chain.
func WorldMatrices(info asset.PrefabInfo) (map[uint64]glm.Mat4, error) {
	world := make(map[uint64]glm.Mat4, len(info.NodeMatrices)+len(info.NodeMeshes))
	visiting := make(map[uint64]bool)

	var resolve func(node uint64) (glm.Mat4, error)
	resolve = func(node uint64) (glm.Mat4, error) {
		if m, ok := world[node]; ok {
			return m, nil
		}
		if visiting[node] {
			return glm.Mat4{}, errors.Wrapf(ErrCycle, "at node %d", node)
		}
		visiting[node] = true
		defer delete(visiting, node)

		local := info.Local(node)
		parent, ok := info.NodeParents[node]
		if !ok || !known(info, parent) {
			world[node] = local
			return local, nil
		}
		pm, err := resolve(parent)
		if err != nil {
			return glm.Mat4{}, err
		}
		m := pm.Mul4(local)
		world[node] = m
		return m, nil
	}

	for _, node := range nodes(info) {
		if _, err := resolve(node); err != nil {
			return nil, err
		}
	}
	return world, nil
}

func known(info asset.PrefabInfo, node uint64) bool {
	if _, ok := info.NodeMatrices[node]; ok {
		return true
	}
	if _, ok := info.NodeParents[node]; ok {
		return true
	}
	_, ok := info.NodeMeshes[node]
	return ok
}

// nodes lists the nodes that carry a transform or a mesh in ascending order.
func nodes(info asset.PrefabInfo) []uint64 {
	seen := make(map[uint64]struct{}, len(info.NodeMatrices)+len(info.NodeMeshes))
	for n := range info.NodeMatrices {
		seen[n] = struct{}{}
	}
	for n := range info.NodeMeshes {
		seen[n] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Instantiate loads the prefab at path and returns one renderable per
// mesh node, ordered by node ID. Meshes and materials are created
// through the caches of ctx.
func Instantiate(ctx *core.DeviceContext, path string) ([]core.Renderable, error) {
	if ctx.Meshes() == nil || ctx.Materials() == nil {
		return nil, errors.Wrap(core.ErrNotInitialised, "instantiate prefab")
	}
	a, err := asset.Open(ctx.Source(), path)
	if err != nil {
		return nil, errors.Wrapf(err, "load prefab %s", path)
	}
	info, err := asset.ParsePrefab(a)
	if err != nil {
		return nil, errors.Wrapf(err, "prefab %s", path)
	}
	world, err := WorldMatrices(info)
	if err != nil {
		return nil, errors.Wrapf(err, "prefab %s", path)
	}

	ids := make([]uint64, 0, len(info.NodeMeshes))
	for id := range info.NodeMeshes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	renderables := make([]core.Renderable, 0, len(ids))
	for _, id := range ids {
		node := info.NodeMeshes[id]
		mesh, err := ctx.Meshes().Create(node.Mesh)
		if err != nil {
			return nil, errors.Wrapf(err, "prefab %s node %d", path, id)
		}
		material, err := ctx.Materials().Create(node.Material)
		if err != nil {
			return nil, errors.Wrapf(err, "prefab %s node %d", path, id)
		}
		renderables = append(renderables, core.Renderable{
			Mesh:      mesh,
			Material:  material,
			Transform: world[id],
		})
	}
	return renderables, nil
}
