// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []*Entry) []string {
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.Device.Name())
	}
	return result
}

func TestRegistryKeepsAttachOrder(t *testing.T) {
	registry := NewRegistry(0)
	var expected []string
	for i := 0; i < 200; i++ {
		device := &fakeDevice{name: fmt.Sprintf("disk%d", i)}
		require.NoError(t, registry.Register(device, &BackendState{Name: device.name}))
		expected = append(expected, device.name)
	}
	assert.Equal(t, 200, registry.Len())
	assert.Equal(t, expected, names(registry.List()))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry(0)
	device := &fakeDevice{name: "disk"}
	require.NoError(t, registry.Register(device, &BackendState{}))
	err := registry.Register(device, &BackendState{})
	assert.ErrorIs(t, err, ErrDuplicateDevice{Name: "disk"})
	assert.Equal(t, 1, registry.Len())

	// same name, different identity
	require.NoError(t, registry.Register(&fakeDevice{name: "disk"}, &BackendState{}))
	assert.Equal(t, 2, registry.Len())
}

func TestRegistryCapacity(t *testing.T) {
	registry := NewRegistry(2)
	first := &fakeDevice{name: "a"}
	second := &fakeDevice{name: "b"}
	require.NoError(t, registry.Register(first, &BackendState{}))
	require.NoError(t, registry.Register(second, &BackendState{}))

	third := &fakeDevice{name: "c"}
	assert.ErrorIs(t, registry.Admit(third), ErrCapacityExceeded{Capacity: 2})
	err := registry.Register(third, &BackendState{})
	var capacityErr ErrCapacityExceeded
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 2, capacityErr.Capacity)
	assert.Equal(t, []string{"a", "b"}, names(registry.List()))
	_, ok := registry.Lookup(third)
	assert.False(t, ok)

	_, err = registry.Unregister(first)
	require.NoError(t, err)
	require.NoError(t, registry.Register(third, &BackendState{}))
	assert.Equal(t, []string{"b", "c"}, names(registry.List()))
}

func TestRegistryUnregisterCompacts(t *testing.T) {
	registry := NewRegistry(0)
	devices := []*fakeDevice{{name: "a"}, {name: "b"}, {name: "c"}, {name: "d"}}
	for _, device := range devices {
		require.NoError(t, registry.Register(device, &BackendState{Name: device.name}))
	}
	state, err := registry.Unregister(devices[1])
	require.NoError(t, err)
	assert.Equal(t, "b", state.Name)
	assert.Equal(t, []string{"a", "c", "d"}, names(registry.List()))

	for _, device := range []*fakeDevice{devices[0], devices[2], devices[3]} {
		found, ok := registry.Lookup(device)
		require.True(t, ok)
		assert.Equal(t, device.name, found.Name)
	}

	_, err = registry.Unregister(devices[1])
	assert.ErrorIs(t, err, ErrDeviceNotFound{Name: "b"})
}

func TestRegistryListIsASnapshot(t *testing.T) {
	registry := NewRegistry(0)
	device := &fakeDevice{name: "a"}
	require.NoError(t, registry.Register(device, &BackendState{}))
	snapshot := registry.List()
	_, err := registry.Unregister(device)
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
	assert.Empty(t, registry.List())
}

// valueDevice is a non-pointer device whose dynamic type is not comparable.
type valueDevice struct {
	*fakeDevice
	tags []string
}

func TestRegistryRefusesIncomparableDevice(t *testing.T) {
	registry := NewRegistry(0)
	device := valueDevice{fakeDevice: &fakeDevice{name: "value"}, tags: []string{"a"}}
	var err error
	assert.NotPanics(t, func() { err = registry.Register(device, &BackendState{}) })
	assert.ErrorIs(t, err, ErrIncomparableDevice{Name: "value"})
	assert.Zero(t, registry.Len())

	assert.NotPanics(t, func() {
		_, ok := registry.Lookup(device)
		assert.False(t, ok)
		_, err = registry.Unregister(device)
	})
	assert.ErrorIs(t, err, ErrIncomparableDevice{Name: "value"})
}
