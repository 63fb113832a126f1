// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package config loads the daemon configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/target"
	"tcmutarget/pkg/tcmu/loopback"
)

const (
	DefaultSocketPath = "/run/tcmutarget/api.sock"
	DefaultStorageDir = "/var/lib/tcmutarget"
	DefaultSubtype    = "file"
	DefaultBlockSize  = 512
)

type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (err ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid configuration value of %s: %s", err.Field, err.Reason)
}

// Size is a byte count that also accepts K, M, G and T binary suffixes.
type Size uint64

func (size *Size) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*size = parsed
	return nil
}

func ParseSize(text string) (Size, error) {
	text = strings.TrimSpace(text)
	multiplier := uint64(1)
	if text != "" {
		switch strings.ToUpper(text[len(text)-1:]) {
		case "K":
			multiplier = 1 << 10
		case "M":
			multiplier = 1 << 20
		case "G":
			multiplier = 1 << 30
		case "T":
			multiplier = 1 << 40
		}
		if multiplier != 1 {
			text = text[:len(text)-1]
		}
	}
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size '%s'", text)
	}
	if value > ^uint64(0)/multiplier {
		return 0, fmt.Errorf("size '%s' overflows", text)
	}
	return Size(value * multiplier), nil
}

type Handler struct {
	Name        string `yaml:"name"`
	Subtype     string `yaml:"subtype"`
	Description string `yaml:"description"`
}

// Device is a device that exists before the daemon starts.
type Device struct {
	Name      string `yaml:"name"`
	Config    string `yaml:"config"`
	Size      Size   `yaml:"size"`
	BlockSize uint32 `yaml:"block_size"`
}

type Config struct {
	SocketPath   string   `yaml:"socket_path"`
	LogLevel     string   `yaml:"log_level"`
	Handler      Handler  `yaml:"handler"`
	StorageDir   string   `yaml:"storage_dir"`
	MaxDevices   int      `yaml:"max_devices"`
	IOWorkers    int      `yaml:"io_workers"`
	IOQueueDepth int      `yaml:"io_queue_depth"`
	NullWrites   string   `yaml:"null_writes"`
	Devices      []Device `yaml:"devices"`
}

func Default() *Config {
	return &Config{
		SocketPath: DefaultSocketPath,
		LogLevel:   logger.Info.String(),
		Handler: Handler{
			Name:        "tcmutarget",
			Subtype:     DefaultSubtype,
			Description: "file/<path>, empty path keeps the image in the storage directory",
		},
		StorageDir: DefaultStorageDir,
		NullWrites: string(target.NullWritesAccept),
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, config.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}
	for i := range config.Devices {
		if config.Devices[i].BlockSize == 0 {
			config.Devices[i].BlockSize = DefaultBlockSize
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (config *Config) Validate() error {
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return ErrInvalidConfig{Field: "log_level", Reason: err.Error()}
	}
	if _, err := target.ParseNullWritePolicy(config.NullWrites); err != nil {
		return ErrInvalidConfig{Field: "null_writes", Reason: err.Error()}
	}
	if config.SocketPath == "" {
		return ErrInvalidConfig{Field: "socket_path", Reason: "must not be empty"}
	}
	if config.Handler.Subtype == "" || strings.Contains(config.Handler.Subtype, "/") {
		return ErrInvalidConfig{Field: "handler.subtype", Reason: fmt.Sprintf("'%s' is not a subtype", config.Handler.Subtype)}
	}
	for field, value := range map[string]int{
		"max_devices":    config.MaxDevices,
		"io_workers":     config.IOWorkers,
		"io_queue_depth": config.IOQueueDepth,
	} {
		if value < 0 {
			return ErrInvalidConfig{Field: field, Reason: "must not be negative"}
		}
	}
	if config.MaxDevices > 0 && len(config.Devices) > config.MaxDevices {
		return ErrInvalidConfig{
			Field:  "devices",
			Reason: fmt.Sprintf("%d devices exceed max_devices %d", len(config.Devices), config.MaxDevices),
		}
	}
	seen := make(map[string]bool, len(config.Devices))
	for i, device := range config.Devices {
		field := fmt.Sprintf("devices[%d]", i)
		if device.Name == "" {
			return ErrInvalidConfig{Field: field + ".name", Reason: "must not be empty"}
		}
		if seen[device.Name] {
			return ErrInvalidConfig{Field: field + ".name", Reason: fmt.Sprintf("duplicate device %s", device.Name)}
		}
		seen[device.Name] = true
		if !strings.Contains(device.Config, "/") {
			return ErrInvalidConfig{Field: field + ".config", Reason: "expected <subtype>/<path>"}
		}
		if device.BlockSize == 0 {
			return ErrInvalidConfig{Field: field + ".block_size", Reason: "must be positive"}
		}
	}
	return nil
}

func (config *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(config.LogLevel)
	return level
}

func (config *Config) Options() target.Options {
	return target.Options{
		MaxDevices:   config.MaxDevices,
		IOWorkers:    config.IOWorkers,
		IOQueueDepth: config.IOQueueDepth,
	}
}

func (config *Config) Stores() (*target.Stores, error) {
	policy, err := target.ParseNullWritePolicy(config.NullWrites)
	if err != nil {
		return nil, ErrInvalidConfig{Field: "null_writes", Reason: err.Error()}
	}
	return &target.Stores{Directory: config.StorageDir, NullWrites: policy}, nil
}

// DeviceConfigs lists the preexisting devices in file order.
func (config *Config) DeviceConfigs() []loopback.DeviceConfig {
	devices := make([]loopback.DeviceConfig, 0, len(config.Devices))
	for _, device := range config.Devices {
		devices = append(devices, loopback.DeviceConfig{
			Name:      device.Name,
			Config:    device.Config,
			BlockSize: device.BlockSize,
			Size:      uint64(device.Size),
		})
	}
	return devices
}
