// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// File is a Store persisted as a single CBOR document. Every change
// rewrites the file through a temporary file and rename.
type File struct {
	base
	path string
}

// OpenFile loads path, creating an empty store if it does not exist
func OpenFile(path string) (*File, error) {
	f := &File{path: path}
	f.base = base{doc: map[string]map[string][]byte{}, out: f}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("open store: %w", err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := cbor.Unmarshal(raw, &f.doc); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", path, err)
	}
	if f.doc == nil {
		f.doc = map[string]map[string][]byte{}
	}
	return f, nil
}

// Path returns the backing file path
func (f *File) Path() string {
	return f.path
}

// Close does nothing; every change is already on disk
func (f *File) Close() error { return nil }

func (f *File) flush(doc map[string]map[string][]byte) error {
	raw, err := cbor.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
