// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendStateComputesBlocks(t *testing.T) {
	cases := []struct {
		blockSize uint32
		size      uint64
		numLbas   uint64
		residual  uint64
	}{
		{512, 1048576, 2048, 0},
		{4096, 1048576, 256, 0},
		{512, 1000, 1, 488},
		{512, 100, 0, 100},
	}
	for _, testCase := range cases {
		device := &fakeDevice{name: "disk", config: "file/", blockSize: testCase.blockSize, size: testCase.size}
		opener := newMemoryOpener()
		state, err := NewBackendState(device, opener)
		require.NoError(t, err)
		assert.Equal(t, testCase.numLbas, state.NumLbas)
		assert.Equal(t, testCase.residual, state.Residual)
		assert.Equal(t, testCase.blockSize, state.BlockSize)
		assert.Len(t, opener.store("disk").data, int(testCase.numLbas*uint64(testCase.blockSize)))
		assert.Equal(t, "disk", state.Unit.Name)
		require.NoError(t, state.Close())
	}
}

func TestBackendStateRejectsBadAttributes(t *testing.T) {
	opener := newMemoryOpener()
	_, err := NewBackendState(&fakeDevice{name: "zero", blockSize: 0, size: 4096}, opener)
	var attributesErr ErrInvalidDeviceAttributes
	require.ErrorAs(t, err, &attributesErr)
	assert.Equal(t, "zero", attributesErr.Name)

	_, err = NewBackendState(&fakeDevice{name: "broken", attributeErr: errors.New("no attribute")}, opener)
	require.ErrorAs(t, err, &attributesErr)
	assert.Empty(t, opener.stores)
}

func TestBackendStateOpenFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "disk.img")
	stores := &Stores{}
	device := &fakeDevice{name: "disk", config: "file/" + missing, blockSize: 512, size: 4096}
	_, err := NewBackendState(device, stores)
	var openErr *ErrBackendOpen
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, missing, openErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBackendStateWrapsForeignOpenErrors(t *testing.T) {
	cause := errors.New("quota exceeded")
	opener := OpenerFunc(func(name, config string, size uint64) (BackingStore, error) {
		return nil, cause
	})
	_, err := NewBackendState(&fakeDevice{name: "disk", blockSize: 512, size: 512}, opener)
	var openErr *ErrBackendOpen
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, cause)
}

func TestBackendStateCloseReleasesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	device := &fakeDevice{name: "disk", config: "file/" + path, blockSize: 512, size: 8192}
	state, err := NewBackendState(device, &Stores{})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), info.Size())

	require.NoError(t, state.Close())
	require.NoError(t, state.Close())
	_, err = state.store.(*FileBackingStore).file.Stat()
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestBackendStatePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	state, err := NewBackendState(&fakeDevice{name: "disk", config: "file/" + path, blockSize: 512, size: 512}, &Stores{})
	require.NoError(t, err)
	defer state.Close()
	assert.Equal(t, path, state.Path())

	null, err := NewBackendState(&fakeDevice{name: "null", config: "null/", blockSize: 512, size: 512}, &Stores{})
	require.NoError(t, err)
	defer null.Close()
	assert.Empty(t, null.Path())
}
