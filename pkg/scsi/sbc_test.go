// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCapacity16CDB(allocation uint32) []byte {
	cdb := make([]byte, 16)
	cdb[0] = byte(ServiceActionIn16)
	cdb[1] = ServiceActionReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], allocation)
	return cdb
}

func TestReadCapacity16(t *testing.T) {
	buffer := make([]byte, 32)
	sense := make([]byte, SenseBufferSize)
	status := EmulateReadCapacity16(2048, 512, readCapacity16CDB(32), [][]byte{buffer}, sense)
	require.Equal(t, StatusGood, status)
	assert.Equal(t, uint64(2047), binary.BigEndian.Uint64(buffer[0:8]))
	assert.Equal(t, uint32(512), binary.BigEndian.Uint32(buffer[8:12]))
}

func TestReadCapacity16Truncated(t *testing.T) {
	buffer := make([]byte, 32)
	status := EmulateReadCapacity16(2048, 512, readCapacity16CDB(8), [][]byte{buffer}, nil)
	require.Equal(t, StatusGood, status)
	assert.Equal(t, uint64(2047), binary.BigEndian.Uint64(buffer[0:8]))
	assert.Equal(t, make([]byte, 24), buffer[8:])
}

func TestReadCapacity16ShortCDB(t *testing.T) {
	sense := make([]byte, SenseBufferSize)
	status := EmulateReadCapacity16(2048, 512, []byte{byte(ServiceActionIn16), 0x10}, nil, sense)
	assert.Equal(t, StatusCheckCondition, status)
	assert.Equal(t, IllegalRequest, SenseKey(sense))
}

func TestValidateOffsetLength(t *testing.T) {
	assert.True(t, ValidateOffsetLength(8, 0, 8))
	assert.True(t, ValidateOffsetLength(0, 7, 8))
	assert.False(t, ValidateOffsetLength(1, 8, 8))
	assert.False(t, ValidateOffsetLength(0, 8, 8))
	assert.False(t, ValidateOffsetLength(2, ^uint64(0), 8))
}

func TestReportSupportedOperationCodesAll(t *testing.T) {
	cdb := make([]byte, 12)
	cdb[0] = byte(OperationCodeMaintenanceIn)
	cdb[1] = ServiceActionReportSupportedOperationCodes
	binary.BigEndian.PutUint32(cdb[6:10], 4096)
	buffer := make([]byte, 4096)
	status := EmulateReportSupportedOperationCodes(cdb, [][]byte{buffer}, make([]byte, SenseBufferSize))
	require.Equal(t, StatusGood, status)
	assert.Equal(t, uint32(len(supportedCommands)*8), binary.BigEndian.Uint32(buffer[0:4]))
	assert.Equal(t, byte(TestUnitReady), buffer[4])
}

func TestReportSupportedOperationCodesSingle(t *testing.T) {
	cdb := make([]byte, 12)
	cdb[0] = byte(OperationCodeMaintenanceIn)
	cdb[1] = ServiceActionReportSupportedOperationCodes
	cdb[2] = reportSingleReportingOption
	cdb[3] = byte(Read10)
	binary.BigEndian.PutUint32(cdb[6:10], 64)
	buffer := make([]byte, 64)
	status := EmulateReportSupportedOperationCodes(cdb, [][]byte{buffer}, make([]byte, SenseBufferSize))
	require.Equal(t, StatusGood, status)
	assert.Equal(t, byte(0x03), buffer[1])
	assert.Equal(t, byte(10), buffer[3])
	assert.Equal(t, byte(Read10), buffer[4])

	// READ CAPACITY(16) has a service action, asking without one fails
	cdb[3] = byte(ServiceActionIn16)
	sense := make([]byte, SenseBufferSize)
	status = EmulateReportSupportedOperationCodes(cdb, [][]byte{buffer}, sense)
	assert.Equal(t, StatusCheckCondition, status)
	assert.Equal(t, AscInvalidFieldInCdb, SenseCode(sense))

	cdb[2] = reportSingleServiceActionReportingOption
	cdb[5] = ServiceActionReadCapacity16
	status = EmulateReportSupportedOperationCodes(cdb, [][]byte{buffer}, sense)
	assert.Equal(t, StatusGood, status)
	assert.Equal(t, byte(16), buffer[3])
}
