// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"encoding/binary"
)

const fixedFormatSenseLength = 18

// SetSenseData fills sense with current, fixed format sense data and returns
// the CHECK CONDITION status the command has to complete with.
func SetSenseData(sense []byte, key byte, asc AdditionalSenseCode) Status {
	if len(sense) < fixedFormatSenseLength {
		return StatusCheckCondition
	}
	for i := range sense[:fixedFormatSenseLength] {
		sense[i] = 0
	}
	// fixed format
	// current, not deferred
	sense[0] = 0x70
	sense[2] = key & 0x0f
	// additional sense length
	sense[7] = fixedFormatSenseLength - 8
	sense[12] = byte(asc >> 8)
	sense[13] = byte(asc)
	return StatusCheckCondition
}

// SenseKey returns the sense key stored by SetSenseData.
func SenseKey(sense []byte) byte {
	if len(sense) < 3 {
		return NoSense
	}
	return sense[2] & 0x0f
}

// SenseCode returns the ASC/ASCQ pair stored by SetSenseData.
func SenseCode(sense []byte) AdditionalSenseCode {
	if len(sense) < 14 {
		return NoAdditionalSense
	}
	return AdditionalSenseCode(binary.BigEndian.Uint16(sense[12:14]))
}

// CDBLength is the length of a command descriptor block as defined by the
// group code of its operation code.
func CDBLength(opcode byte) int {
	switch opcode >> 5 {
	case 0:
		return 6
	case 1, 2:
		return 10
	case 4:
		return 16
	case 5:
		return 12
	default:
		return 0
	}
}

// LogicalBlockAddress decodes the LBA field of READ/WRITE/SYNCHRONIZE CACHE
// command blocks.
func LogicalBlockAddress(cdb []byte) uint64 {
	if len(cdb) == 0 || len(cdb) < CDBLength(cdb[0]) {
		return 0
	}
	switch CommandType(cdb[0]) {
	case Read6, Write6:
		return uint64(cdb[1]&0x1f)<<16 | uint64(cdb[2])<<8 | uint64(cdb[3])
	case Read10, Write10, SynchronizeCache10, Read12, Write12:
		return uint64(binary.BigEndian.Uint32(cdb[2:]))
	case Read16, Write16, WriteSame16, SynchronizeCache16:
		return binary.BigEndian.Uint64(cdb[2:])
	default:
		return 0
	}
}

// TransferLength decodes the number of logical blocks a command addresses.
func TransferLength(cdb []byte) uint32 {
	if len(cdb) == 0 || len(cdb) < CDBLength(cdb[0]) {
		return 0
	}
	switch CommandType(cdb[0]) {
	case Read6, Write6:
		// zero means 256 blocks for the 6 byte variants
		if cdb[4] == 0 {
			return 256
		}
		return uint32(cdb[4])
	case Read10, Write10, SynchronizeCache10:
		return uint32(binary.BigEndian.Uint16(cdb[7:]))
	case Read12, Write12:
		return binary.BigEndian.Uint32(cdb[6:])
	case Read16, Write16, WriteSame16, SynchronizeCache16:
		return binary.BigEndian.Uint32(cdb[10:])
	default:
		return 0
	}
}

// ForceUnitAccess reports whether the FUA bit of a 10/12/16 byte READ or
// WRITE command is set.
func ForceUnitAccess(cdb []byte) bool {
	forceUnitAccessBitMask := byte(0x8)
	if len(cdb) < 2 {
		return false
	}
	switch CommandType(cdb[0]) {
	case Read6, Write6:
		return false
	}
	return cdb[1]&forceUnitAccessBitMask != 0
}

// IOVecLength is the total capacity of a scatter/gather list.
func IOVecLength(iovec [][]byte) int {
	total := 0
	for _, buffer := range iovec {
		total += len(buffer)
	}
	return total
}

// CopyToIOVec scatters data over iovec and returns the number of bytes copied.
func CopyToIOVec(iovec [][]byte, data []byte) int {
	copied := 0
	for _, buffer := range iovec {
		if copied == len(data) {
			break
		}
		copied += copy(buffer, data[copied:])
	}
	return copied
}

// CopyFromIOVec gathers iovec into data and returns the number of bytes copied.
func CopyFromIOVec(data []byte, iovec [][]byte) int {
	copied := 0
	for _, buffer := range iovec {
		if copied == len(data) {
			break
		}
		copied += copy(data[copied:], buffer)
	}
	return copied
}

// respond copies a response into the data-in buffers, truncated to the
// allocation length requested by the initiator.
func respond(iovec [][]byte, data []byte, allocationLength int) {
	if allocationLength < len(data) {
		data = data[:allocationLength]
	}
	CopyToIOVec(iovec, data)
}

func marshalUint64(value uint64) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, value)
	return result
}

func marshalUint32(value uint32) []byte {
	result := make([]byte, 4)
	binary.BigEndian.PutUint32(result, value)
	return result
}

// paddedString pads line with zeroes to a multiple of align, keeping at most
// maxLength bytes.
func paddedString(line string, align int, maxLength int) []byte {
	lineBytes := []byte(line)
	length := len(lineBytes)
	paddingSize := align - (length % align)
	if length+paddingSize > maxLength {
		return lineBytes[:maxLength]
	}
	result := make([]byte, length+paddingSize)
	copy(result, lineBytes)
	return result
}
