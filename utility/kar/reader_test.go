// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/utility/kar"
)

func TestOpenNotKar(t *testing.T) {
	_, err := kar.Open(bytes.NewReader([]byte("this is definitely not an archive at all")))
	if !errors.Is(err, kar.ErrFileFormat) {
		t.Errorf("expected ErrFileFormat, got %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	data := buildArchive(t)
	_, err := kar.Open(bytes.NewReader(data[:kar.MagicLength+kar.HeaderSizeNumberLength+3]))
	if !errors.Is(err, kar.ErrFileFormat) {
		t.Errorf("expected ErrFileFormat, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(buildArchive(t)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Open("nope"); !errors.Is(err, kar.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := ar.ReadAll("nope"); !errors.Is(err, kar.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
