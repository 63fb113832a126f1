// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"errors"
	"fmt"
	"sync"

	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

// BackendState is what a device needs to answer commands. It lives from the
// attach of the device to its detach.
type BackendState struct {
	Name      string
	BlockSize uint32
	NumLbas   uint64
	// Residual is the tail of the advertised size that does not fill a block.
	Residual uint64
	Unit     *scsi.LogicalUnit

	// serializes access to the store
	mutex  sync.Mutex
	store  BackingStore
	closed bool
}

// NewBackendState reads the block size and size attributes of device and
// opens its backing store. Nothing is left open when it fails.
func NewBackendState(device tcmu.Device, opener Opener) (*BackendState, error) {
	log := logger.GetLogger()
	name := device.Name()
	blockSize, err := device.BlockSize()
	if err != nil {
		return nil, ErrInvalidDeviceAttributes{Name: name, Reason: fmt.Sprintf("hw_block_size: %s", err)}
	}
	if blockSize == 0 {
		return nil, ErrInvalidDeviceAttributes{Name: name, Reason: "hw_block_size is 0"}
	}
	size, err := device.Size()
	if err != nil {
		return nil, ErrInvalidDeviceAttributes{Name: name, Reason: fmt.Sprintf("size: %s", err)}
	}
	numLbas := size / uint64(blockSize)
	residual := size % uint64(blockSize)
	if residual != 0 {
		log.Warnf(
			"size %d of %s is not a multiple of block size %d, last %d bytes are not addressable",
			size, name, blockSize, residual,
		)
	}
	store, err := opener.OpenStore(name, device.ConfigString(), numLbas*uint64(blockSize))
	if err != nil {
		var openErr *ErrBackendOpen
		if !errors.As(err, &openErr) {
			err = &ErrBackendOpen{Name: name, Err: err}
		}
		log.Errorf("could not open backing store of %s: %s", name, err)
		return nil, err
	}
	log.Infof("%s: %d blocks of %d bytes, store %q", name, numLbas, blockSize, store.Path())
	return &BackendState{
		Name:      name,
		BlockSize: blockSize,
		NumLbas:   numLbas,
		Residual:  residual,
		Unit:      scsi.NewLogicalUnit(name, blockSize, numLbas),
		store:     store,
	}, nil
}

func (state *BackendState) ReadAt(buffer []byte, offset int64) (int, error) {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	return state.store.ReadAt(buffer, offset)
}

func (state *BackendState) WriteAt(buffer []byte, offset int64) (int, error) {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	return state.store.WriteAt(buffer, offset)
}

func (state *BackendState) DataSync() error {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	return state.store.DataSync()
}

// Close releases the backing store. Repeated calls are no-ops.
func (state *BackendState) Close() error {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	if state.closed {
		return nil
	}
	state.closed = true
	return state.store.Close()
}

// Path is the location of the backing store, empty for the null store.
func (state *BackendState) Path() string {
	return state.store.Path()
}
