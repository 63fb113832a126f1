// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"tcmutarget/pkg/common"
	"tcmutarget/pkg/logger"
)

const (
	FileBackingStorage = "file"
	NullBackingStorage = "null"
)

// BackingStore is the medium behind a device. Offsets are in bytes.
type BackingStore interface {
	io.ReaderAt
	io.WriterAt
	DataSync() error
	Close() error
	Path() string
}

// NullWritePolicy decides what the null store does with written data.
type NullWritePolicy string

const (
	NullWritesAccept NullWritePolicy = "accept"
	NullWritesReject NullWritePolicy = "reject"
)

func ParseNullWritePolicy(value string) (NullWritePolicy, error) {
	switch policy := NullWritePolicy(value); policy {
	case NullWritesAccept, NullWritesReject:
		return policy, nil
	case "":
		return NullWritesAccept, nil
	default:
		return "", fmt.Errorf("unknown null write policy %q, expected accept or reject", value)
	}
}

// NullBackingStore holds no data: reads fail with a medium error, writes are
// accepted or rejected according to its policy.
type NullBackingStore struct {
	writes NullWritePolicy
}

func NewNullBackingStore(writes NullWritePolicy) *NullBackingStore {
	return &NullBackingStore{writes: writes}
}

func (backingStore *NullBackingStore) ReadAt(buffer []byte, offset int64) (int, error) {
	logger.GetLogger().Debugf(
		"Called READ on NullBackingStore with transfer length %d and offset %d",
		len(buffer),
		offset,
	)
	return 0, ErrNullRead{}
}

func (backingStore *NullBackingStore) WriteAt(buffer []byte, offset int64) (int, error) {
	logger.GetLogger().Debugf(
		"Called WRITE on NullBackingStore with buffer size %d and offset %d",
		len(buffer),
		offset,
	)
	if backingStore.writes == NullWritesReject {
		return 0, ErrNullWrite{}
	}
	return len(buffer), nil
}

func (backingStore *NullBackingStore) DataSync() error {
	return nil
}

func (backingStore *NullBackingStore) Close() error {
	return nil
}

func (backingStore *NullBackingStore) Path() string {
	return ""
}

// FileBackingStore keeps the blocks of a device in a regular file.
type FileBackingStore struct {
	file *os.File
	path string
}

// OpenFileBackingStore opens or creates path and grows it to size bytes.
// An existing larger file is left as is.
func OpenFileBackingStore(path string, size uint64) (*FileBackingStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err == nil && uint64(info.Size()) < size {
		err = file.Truncate(int64(size))
	}
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, common.RaiseFrom(err, closeErr)
		}
		return nil, err
	}
	return &FileBackingStore{file: file, path: path}, nil
}

// ReadAt treats the area past the end of the file as zeroes.
func (backingStore *FileBackingStore) ReadAt(buffer []byte, offset int64) (int, error) {
	read, err := backingStore.file.ReadAt(buffer, offset)
	if errors.Is(err, io.EOF) {
		clear(buffer[read:])
		return len(buffer), nil
	}
	return read, err
}

func (backingStore *FileBackingStore) WriteAt(buffer []byte, offset int64) (int, error) {
	return backingStore.file.WriteAt(buffer, offset)
}

// DataSync flushes file data without forcing a metadata update.
func (backingStore *FileBackingStore) DataSync() error {
	for {
		err := unix.Fdatasync(int(backingStore.file.Fd()))
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (backingStore *FileBackingStore) Close() error {
	return backingStore.file.Close()
}

func (backingStore *FileBackingStore) Path() string {
	return backingStore.path
}

// Opener creates the backing store of a device from its configuration
// string.
type Opener interface {
	OpenStore(name, config string, size uint64) (BackingStore, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(name, config string, size uint64) (BackingStore, error)

func (open OpenerFunc) OpenStore(name, config string, size uint64) (BackingStore, error) {
	return open(name, config, size)
}

// Stores opens file and null backing stores. A configuration string is
// "<subtype>/<path>"; the null subtype selects the null store, any other
// subtype names a file. An empty path means <Directory>/<device name>.
type Stores struct {
	Directory  string
	NullWrites NullWritePolicy
}

func splitConfig(config string) (subtype, path string, err error) {
	subtype, path, found := strings.Cut(config, "/")
	if !found || subtype == "" {
		return "", "", fmt.Errorf("config %q is not in <subtype>/<path> form", config)
	}
	return subtype, path, nil
}

// CheckConfig has the signature of tcmu.Handler.CheckConfig.
func (stores *Stores) CheckConfig(config string) (bool, string) {
	subtype, path, err := splitConfig(config)
	if err != nil {
		return false, err.Error()
	}
	if subtype != NullBackingStorage && path == "" && stores.Directory == "" {
		return false, "no path given and no storage directory configured"
	}
	return true, ""
}

func (stores *Stores) OpenStore(name, config string, size uint64) (BackingStore, error) {
	log := logger.GetLogger()
	subtype, path, err := splitConfig(config)
	if err != nil {
		return nil, &ErrBackendOpen{Name: name, Err: err}
	}
	if subtype == NullBackingStorage {
		log.Debugf("device %s uses the null backing store, writes: %s", name, stores.NullWrites)
		return NewNullBackingStore(stores.NullWrites), nil
	}
	if path == "" {
		if stores.Directory == "" {
			return nil, &ErrBackendOpen{Name: name, Err: fmt.Errorf("no storage directory configured")}
		}
		path = filepath.Join(stores.Directory, filepath.Base(name))
	}
	log.Debugf("opening: %s", config)
	backingStore, err := OpenFileBackingStore(path, size)
	if err != nil {
		return nil, &ErrBackendOpen{Name: name, Path: path, Err: err}
	}
	return backingStore, nil
}
