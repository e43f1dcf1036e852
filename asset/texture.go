// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"image"
	"image/draw"

	"github.com/cockroachdb/errors"
)

// TextureFormat is the pixel layout of a texture blob.
type TextureFormat string

// FormatRGBA8 is 8 bit per channel RGBA, the only format the engine loads.
const FormatRGBA8 TextureFormat = "RGBA8"

// TextureInfo describes a texture asset.
type TextureInfo struct {
	Name        string        `json:"name"`
	Size        uint64        `json:"filesize"`
	Width       uint32        `json:"width"`
	Height      uint32        `json:"height"`
	Depth       uint32        `json:"depth"`
	Format      TextureFormat `json:"format"`
	Compression Compression   `json:"compression"`
}

// PixelSize returns the size of the uncompressed pixel data.
func (t TextureInfo) PixelSize() uint64 {
	depth := t.Depth
	if depth == 0 {
		depth = 1
	}
	return uint64(t.Width) * uint64(t.Height) * uint64(depth) * 4
}

// PackTexture builds a texture asset from RGBA8 pixels. The compression
// in info is a request, the stored info says what was used.
func PackTexture(info TextureInfo, pixels []byte) (Asset, error) {
	if info.Format == "" {
		info.Format = FormatRGBA8
	}
	if info.Depth == 0 {
		info.Depth = 1
	}
	if uint64(len(pixels)) != info.PixelSize() {
		return Asset{}, errors.Newf("texture %q: %d bytes of pixels for %dx%dx%d", info.Name, len(pixels), info.Width, info.Height, info.Depth)
	}
	blob, mode, err := pack(info.Compression, pixels)
	if err != nil {
		return Asset{}, err
	}
	info.Size = uint64(len(pixels))
	info.Compression = mode
	return newAsset(TypeTexture, info, blob)
}

// ParseTextureInfo reads the description of a texture asset.
func ParseTextureInfo(a Asset) (TextureInfo, error) {
	if err := a.expect(TypeTexture); err != nil {
		return TextureInfo{}, err
	}
	var info TextureInfo
	if err := a.decodeJSON(&info); err != nil {
		return TextureInfo{}, err
	}
	if info.Format != FormatRGBA8 {
		return TextureInfo{}, errors.Wrapf(ErrFormat, "texture format %q", info.Format)
	}
	if info.Width == 0 || info.Height == 0 {
		return TextureInfo{}, errors.Wrapf(ErrFormat, "texture extent %dx%d", info.Width, info.Height)
	}
	info.Compression = info.Compression.normalize()
	return info, nil
}

// UnpackTexture writes the pixels of a texture into dst, which must be
// info.Size bytes long.
func UnpackTexture(info TextureInfo, blob, dst []byte) error {
	if uint64(len(dst)) != info.Size {
		return errors.Newf("texture %q: destination of %d bytes, want %d", info.Name, len(dst), info.Size)
	}
	return unpack(info.Compression, blob, dst)
}

// Pixels draws img onto an RGBA canvas and returns its tightly packed pixels.
func Pixels(img image.Image) []byte {
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)
	return canvas.Pix
}
