// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/util/collada"
)

type corner struct {
	pos, normal, uv int
}

// ImportCollada reads the first geometry of a Collada document into an
// indexed mesh. Corners sharing position, normal and uv share a vertex.
func ImportCollada(fileContents []byte) (*Mesh, error) {
	var doc collada.Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return nil, errors.Wrap(err, "parse collada")
	}
	if len(doc.Geometries) == 0 {
		return nil, errors.New("collada: no geometry")
	}
	mesh := doc.Geometries[0].Mesh

	out := &Mesh{}
	seen := make(map[corner]uint32)
	for _, tris := range mesh.Triangles {
		if err := importTriangles(mesh, tris, out, seen); err != nil {
			return nil, err
		}
	}
	if len(out.Indices) == 0 {
		return nil, errors.New("collada: geometry has no triangles")
	}
	return out, nil
}

func importTriangles(mesh collada.Mesh, tris collada.Triangles, out *Mesh, seen map[corner]uint32) error {
	var (
		positions, normals, uvs collada.Source
		posOff, norOff, uvOff   = -1, -1, -1
	)
	for _, in := range tris.Inputs {
		src, err := mesh.Lookup(in.Source)
		if err != nil {
			return err
		}
		switch in.Semantic {
		case collada.SemanticVertex:
			positions, posOff = src, int(in.Offset)
		case collada.SemanticNormal:
			normals, norOff = src, int(in.Offset)
		case collada.SemanticTexcoord:
			if uvOff < 0 || in.Set == 0 {
				uvs, uvOff = src, int(in.Offset)
			}
		}
	}
	if posOff < 0 {
		return errors.New("collada: triangles without positions")
	}

	stride := tris.Stride()
	if stride == 0 || len(tris.Index)%(stride*3) != 0 {
		return errors.Newf("collada: %d indices do not form whole triangles", len(tris.Index))
	}
	for i := 0; i < len(tris.Index); i += stride {
		c := corner{pos: tris.Index[i+posOff], normal: -1, uv: -1}
		if norOff >= 0 {
			c.normal = tris.Index[i+norOff]
		}
		if uvOff >= 0 {
			c.uv = tris.Index[i+uvOff]
		}
		if idx, ok := seen[c]; ok {
			out.Indices = append(out.Indices, idx)
			continue
		}

		v := Vertex{Color: glm.Vec3{1, 1, 1}}
		p, err := positions.Element(c.pos)
		if err != nil || len(p) < 3 {
			return errors.Wrap(errOr(err), "position")
		}
		v.Pos = glm.Vec3{p[0], p[1], p[2]}
		if c.normal >= 0 {
			n, err := normals.Element(c.normal)
			if err != nil || len(n) < 3 {
				return errors.Wrap(errOr(err), "normal")
			}
			v.Normal = glm.Vec3{n[0], n[1], n[2]}
		}
		if c.uv >= 0 {
			t, err := uvs.Element(c.uv)
			if err != nil || len(t) < 2 {
				return errors.Wrap(errOr(err), "texcoord")
			}
			v.UV = glm.Vec2{t[0], 1 - t[1]}
		}

		idx := uint32(len(out.Vertices))
		seen[c] = idx
		out.Vertices = append(out.Vertices, v)
		out.Indices = append(out.Indices, idx)
	}
	return nil
}

func errOr(err error) error {
	if err != nil {
		return err
	}
	return errors.New("collada: element too short")
}
