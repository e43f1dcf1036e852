// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
)

// Compression is how an asset's blob is stored.
type Compression string

// Compression modes.
const (
	CompressionNone Compression = "None"
	CompressionLZ4  Compression = "LZ4"
)

// normalize maps anything unrecognised to CompressionNone.
func (c Compression) normalize() Compression {
	if c == CompressionLZ4 {
		return CompressionLZ4
	}
	return CompressionNone
}

// compressBlock compresses src as a single LZ4 block. Incompressible input
// is reported with ok set to false, the caller then stores it raw.
func compressBlock(src []byte) (dst []byte, ok bool, err error) {
	if len(src) == 0 {
		return nil, false, nil
	}
	dst = make([]byte, lz4.CompressBlockBound(len(src)))
	hashTable := make([]int, 1<<16)
	n, err := lz4.CompressBlock(src, dst, hashTable)
	if err != nil {
		return nil, false, errors.Wrap(err, "lz4 compress")
	}
	if n == 0 || n >= len(src) {
		return nil, false, nil
	}
	return dst[:n], true, nil
}

// uncompressBlock decompresses an LZ4 block into dst, which must be exactly
// as large as the uncompressed data.
func uncompressBlock(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "lz4 uncompress"), ErrFormat)
	}
	if n != len(dst) {
		return errors.Wrapf(ErrFormat, "uncompressed %d bytes, want %d", n, len(dst))
	}
	return nil
}

// unpack copies or decompresses blob into dst.
func unpack(c Compression, blob, dst []byte) error {
	if c.normalize() == CompressionLZ4 {
		return uncompressBlock(blob, dst)
	}
	if len(blob) < len(dst) {
		return errors.Wrapf(ErrFormat, "blob holds %d bytes, want %d", len(blob), len(dst))
	}
	copy(dst, blob)
	return nil
}

// pack compresses data when asked to and it pays off, returning the mode
// actually used.
func pack(c Compression, data []byte) ([]byte, Compression, error) {
	if c.normalize() != CompressionLZ4 {
		return data, CompressionNone, nil
	}
	out, ok, err := compressBlock(data)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return data, CompressionNone, nil
	}
	return out, CompressionLZ4, nil
}
