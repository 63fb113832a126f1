// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package scsi block command processing
package scsi

import (
	"encoding/binary"
	"tcmutarget/pkg/logger"
)

const readCapacity16ResponseLength = 32

// ValidateOffsetLength checks that transferLength blocks starting at
// logicalBlockAddress fit into a device of deviceSizeInBlocks blocks.
func ValidateOffsetLength(transferLength, logicalBlockAddress, deviceSizeInBlocks uint64) bool {
	log := logger.GetLogger()
	if transferLength != 0 {
		// check for uint64 overflow of the end of the area
		logicalBlockAddressOverflow := logicalBlockAddress+transferLength < logicalBlockAddress
		if logicalBlockAddressOverflow || logicalBlockAddress+transferLength > deviceSizeInBlocks {
			log.Warnf(
				"sense data(ILLEGAL_REQUEST,ASC_LBA_OUT_OF_RANGE)"+
					" encounter: logicalBlockAddress: %d, tl: %d, size: %d",
				logicalBlockAddress,
				transferLength,
				deviceSizeInBlocks,
			)
			return false
		}
	} else if logicalBlockAddress >= deviceSizeInBlocks {
		log.Warnf(
			"sense data(ILLEGAL_REQUEST,ASC_LBA_OUT_OF_RANGE)"+
				" encounter: logicalBlockAddress: %d, size: %d",
			logicalBlockAddress,
			deviceSizeInBlocks,
		)
		return false
	}
	return true
}

// EmulateReadCapacity16 Implements SCSI READ CAPACITY(16) command
// The READ CAPACITY (16) command requests that the device server transfer parameter data
// describing the capacity and medium format of the direct-access block device to the data-in buffer.
//
// Reference : SBC2r16
// 5.11 - READ CAPACITY(16)
func EmulateReadCapacity16(numLbas uint64, blockSize uint32, cdb []byte, iovec [][]byte, sense []byte) Status {
	if len(cdb) < 16 {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	allocationLength := binary.BigEndian.Uint32(cdb[10:14])
	response := make([]byte, readCapacity16ResponseLength)
	// RETURNED LOGICAL BLOCK ADDRESS is the last addressable block
	lastLogicalBlockAddress := uint64(0)
	if numLbas > 0 {
		lastLogicalBlockAddress = numLbas - 1
	}
	binary.BigEndian.PutUint64(response[0:8], lastLogicalBlockAddress)
	binary.BigEndian.PutUint32(response[8:12], blockSize)
	respond(iovec, response, int(allocationLength))
	return StatusGood
}
