// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/utility/kar"
	"golang.org/x/exp/mmap"
)

// Source resolves asset paths to their encoded bytes. Paths always use
// forward slashes.
type Source interface {
	ReadFile(name string) ([]byte, error)
}

// Open reads and decodes an asset from src.
func Open(src Source, name string) (Asset, error) {
	raw, err := src.ReadFile(name)
	if err != nil {
		return Asset{}, err
	}
	a, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return Asset{}, errors.Wrapf(err, "decode %s", name)
	}
	return a, nil
}

// DirSource reads assets from a directory tree.
type DirSource struct {
	Root string
}

// ReadFile implements Source.
func (d DirSource) ReadFile(name string) ([]byte, error) {
	p := filepath.Join(d.Root, filepath.FromSlash(path.Clean("/"+name)))
	raw, err := ioutil.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", name), ErrNotFound)
		}
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return raw, nil
}

// ArchiveSource reads assets from a memory mapped kar archive.
type ArchiveSource struct {
	mapped  *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchive maps a kar archive for reading.
func OpenArchive(file string) (*ArchiveSource, error) {
	mapped, err := mmap.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s", file)
	}
	archive, err := kar.Open(mapped)
	if err != nil {
		mapped.Close()
		return nil, errors.Wrapf(err, "open %s", file)
	}
	return &ArchiveSource{mapped: mapped, archive: archive}, nil
}

// ReadFile implements Source.
func (a *ArchiveSource) ReadFile(name string) ([]byte, error) {
	raw, err := a.archive.ReadAll(path.Clean(name))
	if err != nil {
		if errors.Is(err, kar.ErrNotFound) {
			return nil, errors.Mark(err, ErrNotFound)
		}
		return nil, err
	}
	return raw, nil
}

// Names lists the archive's files.
func (a *ArchiveSource) Names() []string {
	return a.archive.Names()
}

// Close unmaps the archive.
func (a *ArchiveSource) Close() error {
	return a.mapped.Close()
}

// MultiSource tries each source in turn, falling through on ErrNotFound.
type MultiSource []Source

// ReadFile implements Source.
func (m MultiSource) ReadFile(name string) ([]byte, error) {
	for _, s := range m {
		raw, err := s.ReadFile(name)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", name)
}

// MemSource serves assets from memory.
type MemSource map[string][]byte

// ReadFile implements Source.
func (m MemSource) ReadFile(name string) ([]byte, error) {
	raw, ok := m[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return raw, nil
}
