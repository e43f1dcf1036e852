// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Transparency is how a material blends.
type Transparency string

// Transparency modes.
const (
	Opaque      Transparency = "opaque"
	Transparent Transparency = "transparent"
	Masked      Transparency = "masked"
)

// MaterialInfo describes a material asset: texture paths by role.
type MaterialInfo struct {
	Textures     map[string]string `json:"textures"`
	Transparency Transparency      `json:"transparency"`
}

// Roles returns the texture roles in sorted order, the order textures
// are bound in.
func (m MaterialInfo) Roles() []string {
	roles := make([]string, 0, len(m.Textures))
	for r := range m.Textures {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// TexturePaths returns the texture paths ordered by role.
func (m MaterialInfo) TexturePaths() []string {
	roles := m.Roles()
	paths := make([]string, len(roles))
	for i, r := range roles {
		paths[i] = m.Textures[r]
	}
	return paths
}

// PackMaterial builds a material asset.
func PackMaterial(info MaterialInfo) (Asset, error) {
	if info.Transparency == "" {
		info.Transparency = Opaque
	}
	return newAsset(TypeMaterial, info, nil)
}

// ParseMaterialInfo reads the description of a material asset.
func ParseMaterialInfo(a Asset) (MaterialInfo, error) {
	if err := a.expect(TypeMaterial); err != nil {
		return MaterialInfo{}, err
	}
	var info MaterialInfo
	if err := a.decodeJSON(&info); err != nil {
		return MaterialInfo{}, err
	}
	switch info.Transparency {
	case Opaque, Transparent, Masked:
	case "":
		info.Transparency = Opaque
	default:
		return MaterialInfo{}, errors.Wrapf(ErrFormat, "transparency %q", info.Transparency)
	}
	return info, nil
}
