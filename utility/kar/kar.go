// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kar is an api for an lz4 backed file format.
// Its purpose is streaming resources from it. It's designed to be memory
// mapped, so (unlike tar) it knows where all the files are located before
// they're read. The archive itself is not compressed, rather every file is
// individually compressed, so it can be read from its place and decompressed
// on the fly. Archives can be read from concurrently.
//
// Layout: the magic "KAR\x00", a fixed width field holding the varint size
// of the gob encoded Header, the Header, then the data section. Index
// offsets are relative to the start of the data section.
package kar

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/cockroachdb/errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a kar archive")
	ErrTempFail   = errors.New("temporary folder or file operation failed")
	ErrNotFound   = errors.New("file not present in archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16
)

var magic = [MagicLength]byte{'K', 'A', 'R', '\x00'}

// IndexEntry is info for one file in the file index.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for kar files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func int64ToBinary(num int64) []byte {
	numBytes := make([]byte, HeaderSizeNumberLength)
	binary.PutVarint(numBytes, num)
	return numBytes
}

func binaryToInt64(bts []byte) (int64, error) {
	num, n := binary.Varint(bts)
	if n <= 0 {
		return 0, errors.Wrap(ErrFileFormat, "header size")
	}
	return num, nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(data); err != nil {
		return nil, errors.Wrap(err, "encode kar header")
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(bts)).Decode(obj); err != nil {
		return errors.Mark(errors.Wrap(err, "decode kar header"), ErrFileFormat)
	}
	return nil
}
