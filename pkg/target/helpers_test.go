// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"encoding/binary"
	"sync"

	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

type fakeDevice struct {
	name         string
	config       string
	blockSize    uint32
	size         uint64
	attributeErr error
}

func (device *fakeDevice) Name() string { return device.name }
func (device *fakeDevice) Fd() int { return -1 }
func (device *fakeDevice) ConfigString() string { return device.config }
func (device *fakeDevice) NextCommand() *tcmu.Command { return nil }
func (device *fakeDevice) ProcessingComplete() {}
func (device *fakeDevice) CompleteCommand(*tcmu.Command, scsi.Status) {}

func (device *fakeDevice) BlockSize() (uint32, error) {
	return device.blockSize, device.attributeErr
}

func (device *fakeDevice) Size() (uint64, error) {
	return device.size, nil
}

// memoryStore is a BackingStore over a byte slice that remembers Close.
type memoryStore struct {
	mutex  sync.Mutex
	data   []byte
	syncs  int
	closed bool
}

func (store *memoryStore) ReadAt(buffer []byte, offset int64) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return copy(buffer, store.data[offset:]), nil
}

func (store *memoryStore) WriteAt(buffer []byte, offset int64) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return copy(store.data[offset:], buffer), nil
}

func (store *memoryStore) DataSync() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.syncs++
	return nil
}

func (store *memoryStore) Close() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.closed = true
	return nil
}

func (store *memoryStore) isClosed() bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.closed
}

func (store *memoryStore) Path() string { return "memory" }

// memoryOpener hands out memory stores and keeps them by device name.
type memoryOpener struct {
	mutex  sync.Mutex
	stores map[string]*memoryStore
}

func newMemoryOpener() *memoryOpener {
	return &memoryOpener{stores: make(map[string]*memoryStore)}
}

func (opener *memoryOpener) OpenStore(name, config string, size uint64) (BackingStore, error) {
	opener.mutex.Lock()
	defer opener.mutex.Unlock()
	store := &memoryStore{data: make([]byte, size)}
	opener.stores[name] = store
	return store, nil
}

func (opener *memoryOpener) store(name string) *memoryStore {
	opener.mutex.Lock()
	defer opener.mutex.Unlock()
	return opener.stores[name]
}

func testUnitReadyCDB() []byte {
	return []byte{byte(scsi.TestUnitReady), 0, 0, 0, 0, 0}
}

func read10CDB(logicalBlockAddress uint32, blocks uint16) []byte {
	cdb := make([]byte, 10)
	cdb[0] = byte(scsi.Read10)
	binary.BigEndian.PutUint32(cdb[2:6], logicalBlockAddress)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

func write10CDB(logicalBlockAddress uint32, blocks uint16, forceUnitAccess bool) []byte {
	cdb := make([]byte, 10)
	cdb[0] = byte(scsi.Write10)
	if forceUnitAccess {
		cdb[1] = 0x08
	}
	binary.BigEndian.PutUint32(cdb[2:6], logicalBlockAddress)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

func readCapacity16CDB() []byte {
	cdb := make([]byte, 16)
	cdb[0] = byte(scsi.ServiceActionIn16)
	cdb[1] = scsi.ServiceActionReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], 32)
	return cdb
}
