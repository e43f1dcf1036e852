// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package asset reads and writes the engine's binary asset container.
// A container starts with a four byte type tag, a version and the lengths
// of the two payloads that follow: a JSON description and a binary blob.
// All numbers are little endian.
package asset

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// package errors
var (
	ErrFormat      = errors.New("corrupted or not an asset file")
	ErrUnknownType = errors.New("unexpected asset type")
	ErrVersion     = errors.New("unsupported asset version")
	ErrNotFound    = errors.New("asset not found")
)

// Type is the four byte tag identifying what an asset holds.
type Type [4]byte

func (t Type) String() string {
	return string(t[:])
}

// Asset types.
var (
	TypeTexture  = Type{'T', 'E', 'X', 'I'}
	TypeMesh     = Type{'M', 'E', 'S', 'H'}
	TypeMaterial = Type{'M', 'A', 'T', 'X'}
	TypePrefab   = Type{'P', 'R', 'F', 'B'}
)

// Version is the container version written by this package.
const Version = 1

// maxPayload bounds either payload so a corrupted length cannot make
// Decode allocate gigabytes.
const maxPayload = 1 << 30

// Asset is a decoded container.
type Asset struct {
	Type    Type
	Version uint32
	JSON    []byte
	Binary  []byte
}

type fileHeader struct {
	Type       Type
	Version    uint32
	JSONLength uint32
	BinLength  uint32
}

// Decode reads one asset from r.
func Decode(r io.Reader) (Asset, error) {
	var h fileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Asset{}, errors.Mark(errors.Wrap(err, "read asset header"), ErrFormat)
	}
	if h.Version == 0 || h.Version > Version {
		return Asset{}, errors.Wrapf(ErrVersion, "version %d", h.Version)
	}
	if h.JSONLength > maxPayload || h.BinLength > maxPayload {
		return Asset{}, errors.Wrapf(ErrFormat, "payload of %d+%d bytes", h.JSONLength, h.BinLength)
	}

	a := Asset{Type: h.Type, Version: h.Version}
	if h.JSONLength > 0 {
		a.JSON = make([]byte, h.JSONLength)
		if _, err := io.ReadFull(r, a.JSON); err != nil {
			return Asset{}, errors.Mark(errors.Wrap(err, "read asset json"), ErrFormat)
		}
	}
	if h.BinLength > 0 {
		a.Binary = make([]byte, h.BinLength)
		if _, err := io.ReadFull(r, a.Binary); err != nil {
			return Asset{}, errors.Mark(errors.Wrap(err, "read asset binary"), ErrFormat)
		}
	}
	return a, nil
}

// Encode writes the asset to w.
func (a Asset) Encode(w io.Writer) error {
	version := a.Version
	if version == 0 {
		version = Version
	}
	h := fileHeader{
		Type:       a.Type,
		Version:    version,
		JSONLength: uint32(len(a.JSON)),
		BinLength:  uint32(len(a.Binary)),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, "write asset header")
	}
	if _, err := w.Write(a.JSON); err != nil {
		return errors.Wrap(err, "write asset json")
	}
	if _, err := w.Write(a.Binary); err != nil {
		return errors.Wrap(err, "write asset binary")
	}
	return nil
}

// Bytes returns the encoded asset.
func (a Asset) Bytes() []byte {
	var buf bytes.Buffer
	a.Encode(&buf)
	return buf.Bytes()
}

// Load reads an asset file.
func Load(path string) (Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Asset{}, errors.Mark(errors.Wrapf(err, "open %s", path), ErrNotFound)
		}
		return Asset{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return Asset{}, errors.Wrapf(err, "decode %s", path)
	}
	return a, nil
}

// Save writes an asset file, replacing any existing one.
func Save(path string, a Asset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := a.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a Asset) expect(t Type) error {
	if a.Type != t {
		return errors.Wrapf(ErrUnknownType, "got %s, want %s", a.Type, t)
	}
	return nil
}

func (a Asset) decodeJSON(v interface{}) error {
	if err := json.Unmarshal(a.JSON, v); err != nil {
		return errors.Mark(errors.Wrapf(err, "parse %s description", a.Type), ErrFormat)
	}
	return nil
}

func newAsset(t Type, info interface{}, blob []byte) (Asset, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return Asset{}, errors.Wrapf(err, "marshal %s description", t)
	}
	return Asset{Type: t, Version: Version, JSON: raw, Binary: blob}, nil
}
