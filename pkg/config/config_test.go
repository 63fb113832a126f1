// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/target"
	"tcmutarget/pkg/tcmu/loopback"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcmutarget.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func TestLoadWithoutFileGivesDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.Equal(t, logger.Info, config.Level())
	stores, err := config.Stores()
	require.NoError(t, err)
	assert.Equal(t, target.NullWritesAccept, stores.NullWrites)
	assert.Equal(t, DefaultStorageDir, stores.Directory)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
socket_path: /tmp/tcmu.sock
log_level: debug
handler:
  name: images
  subtype: file
storage_dir: /srv/images
max_devices: 4
io_workers: 2
io_queue_depth: 16
null_writes: reject
devices:
  - name: disk0
    config: file/
    size: 64M
  - name: disk1
    config: file//srv/other.img
    size: 1048576
    block_size: 4096
`)
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tcmu.sock", config.SocketPath)
	assert.Equal(t, logger.Debug, config.Level())
	assert.Equal(t, "images", config.Handler.Name)
	assert.Equal(t, target.Options{MaxDevices: 4, IOWorkers: 2, IOQueueDepth: 16}, config.Options())

	stores, err := config.Stores()
	require.NoError(t, err)
	assert.Equal(t, &target.Stores{Directory: "/srv/images", NullWrites: target.NullWritesReject}, stores)

	assert.Equal(t, []loopback.DeviceConfig{
		{Name: "disk0", Config: "file/", BlockSize: DefaultBlockSize, Size: 64 << 20},
		{Name: "disk1", Config: "file//srv/other.img", BlockSize: 4096, Size: 1 << 20},
	}, config.DeviceConfigs())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "socket: /tmp/tcmu.sock\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFile(t *testing.T) {
	config, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		text  string
		field string
	}{
		"log level":         {"log_level: loud\n", "log_level"},
		"null writes":       {"null_writes: drop\n", "null_writes"},
		"subtype":           {"handler:\n  subtype: a/b\n", "handler.subtype"},
		"negative workers":  {"io_workers: -1\n", "io_workers"},
		"unnamed device":    {"devices:\n  - config: file/\n    size: 1M\n", "devices[0].name"},
		"duplicate device":  {"devices:\n  - {name: a, config: file/, size: 1M}\n  - {name: a, config: file/, size: 1M}\n", "devices[1].name"},
		"config separator":  {"devices:\n  - {name: a, config: file, size: 1M}\n", "devices[0].config"},
		"too many devices":  {"max_devices: 1\ndevices:\n  - {name: a, config: file/, size: 1M}\n  - {name: b, config: file/, size: 1M}\n", "devices"},
		"empty socket path": {"socket_path: \"\"\n", "socket_path"},
	}
	for name, testCase := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, testCase.text))
			var configErr ErrInvalidConfig
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, testCase.field, configErr.Field)
		})
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]Size{
		"512":  512,
		"4K":   4096,
		"64m":  64 << 20,
		"2G":   2 << 30,
		" 1T ": 1 << 40,
	}
	for text, expected := range cases {
		size, err := ParseSize(text)
		require.NoError(t, err, text)
		assert.Equal(t, expected, size, text)
	}
	for _, text := range []string{"", "G", "-1", "1.5G", "99999999999T"} {
		_, err := ParseSize(text)
		assert.Error(t, err, text)
	}
}
