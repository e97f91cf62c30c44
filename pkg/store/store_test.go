// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseNamespace(t *testing.T, s Store) {
	ns := s.Namespace("RelayStates")
	other := s.Namespace("powerstrips")

	var v uint16
	assert.ErrorIs(t, ns.Get("r1_max_power", &v), ErrNotFound)

	require.NoError(t, ns.Put("r1_max_power", uint16(1500)))
	require.NoError(t, ns.Put("r1_state", true))
	require.NoError(t, other.Put("index", "AABBCCDDEEFF"))

	require.NoError(t, ns.Get("r1_max_power", &v))
	assert.Equal(t, uint16(1500), v)

	var on bool
	require.NoError(t, ns.Get("r1_state", &on))
	assert.True(t, on)

	assert.Equal(t, []string{"r1_max_power", "r1_state"}, ns.Keys())
	assert.Equal(t, []string{"index"}, other.Keys())

	require.NoError(t, ns.Remove("r1_state"))
	require.NoError(t, ns.Remove("missing"))
	assert.Equal(t, []string{"r1_max_power"}, ns.Keys())

	require.NoError(t, other.Clear())
	assert.Empty(t, other.Keys())
	assert.Len(t, ns.Keys(), 1)
}

func TestMemory(t *testing.T) {
	exerciseNamespace(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "node.cbor")

	f, err := OpenFile(path)
	require.NoError(t, err)
	exerciseNamespace(t, f)
	require.NoError(t, f.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	var v uint16
	require.NoError(t, reopened.Namespace("RelayStates").Get("r1_max_power", &v))
	assert.Equal(t, uint16(1500), v)
	assert.Empty(t, reopened.Namespace("powerstrips").Keys())
	assert.Equal(t, path, reopened.Path())
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cbor")
	require.NoError(t, writeFile(path, []byte{0xFF, 0x00, 0x13}))

	_, err := OpenFile(path)
	assert.Error(t, err)
}
