// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package scsi
// SCSI primary command emulation
package scsi

import (
	"encoding/binary"
	"tcmutarget/pkg/logger"
)

// EmulateTestUnitReady Implements SCSI TEST UNIT READY command
// The TEST UNIT READY command requests the device server to indicate whether the logical unit is ready.
// Reference : SPC4r11
// 6.47 - TEST UNIT READY
func EmulateTestUnitReady(cdb []byte, iovec [][]byte, sense []byte) Status {
	return StatusGood
}

// EmulateModeSense Implements SCSI MODE SENSE(6) and MODE SENSE(10)
// The MODE SENSE command requests the device server to return the specified medium,
// logical unit, or peripheral device parameters.
// Reference : SPC5r19
// 6.14 - MODE SENSE(6)
// 6.15 - MODE SENSE(10)
func EmulateModeSense(unit *LogicalUnit, cdb []byte, iovec [][]byte, sense []byte) Status {
	log := logger.GetLogger()
	disableBlockDescriptorsBitMask := byte(0x8)
	// first six bit of second request byte
	pageCodeBitMask := byte(0x3f)
	// last two bits of second request byte
	pageControlBitMask := byte(0xc0)

	if len(cdb) == 0 || len(cdb) < CDBLength(cdb[0]) {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	tenByteVariant := CommandType(cdb[0]) == ModeSense10
	disableBlockDescriptors := cdb[1] & disableBlockDescriptorsBitMask
	pageCode := cdb[2] & pageCodeBitMask
	pageControl := (cdb[2] & pageControlBitMask) >> 6
	subPageCode := cdb[3]
	allocationLength := int(cdb[4])
	if tenByteVariant {
		allocationLength = int(binary.BigEndian.Uint16(cdb[7:9]))
	}

	if pageControl == 3 {
		return SetSenseData(sense, IllegalRequest, AscSavingParmsUnsup)
	}
	blockDescriptor := make([]byte, 0, 8)
	if disableBlockDescriptors == 0 {
		blockDescriptor = append(blockDescriptor, unit.ModeBlockDescriptor...)
	}
	modeParameterListData, err := unit.ModePages.toBytes(pageCode, subPageCode, pageControl)
	if err != nil {
		log.Warn(err)
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}

	// DEVICE-SPECIFIC PARAMETER for block devices: DPOFUA (0x10) is set,
	// write protect (0x80) is not.
	deviceSpecificParameter := byte(0x10)
	var responseData []byte
	if tenByteVariant {
		responseData = []byte{
			// MODE DATA LENGTH, filled below
			0x00, 0x00,
			// MEDIUM TYPE
			0x00,
			deviceSpecificParameter,
			// Reserved
			0x00, 0x00,
			// BLOCK DESCRIPTOR LENGTH
			0x00, byte(len(blockDescriptor)),
		}
	} else {
		responseData = []byte{
			// MODE DATA LENGTH, filled below
			0x00,
			// MEDIUM TYPE
			0x00,
			deviceSpecificParameter,
			// BLOCK DESCRIPTOR LENGTH
			byte(len(blockDescriptor)),
		}
	}
	responseData = append(responseData, blockDescriptor...)
	responseData = append(responseData, modeParameterListData...)
	// the MODE DATA LENGTH field does not count itself
	if tenByteVariant {
		binary.BigEndian.PutUint16(responseData, uint16(len(responseData)-2))
	} else {
		responseData[0] = byte(len(responseData) - 1)
	}
	respond(iovec, responseData, allocationLength)
	return StatusGood
}

// EmulateModeSelect Implements SCSI MODE SELECT(6) and MODE SELECT(10)
// The MODE SELECT command provides a means for the application client to specify
// medium, logical unit, or peripheral device parameters to the device server.
// None of the pages is changeable, so only parameter lists repeating the
// current values are accepted.
// Reference : SPC5r19
// 6.11 - MODE SELECT(6)
// 6.12 - MODE SELECT(10)
func EmulateModeSelect(unit *LogicalUnit, cdb []byte, iovec [][]byte, sense []byte) Status {
	log := logger.GetLogger()
	const (
		pageFormatBitMask = byte(0x10)
		savePagesBitMask  = byte(0x01)
	)
	if len(cdb) == 0 || len(cdb) < CDBLength(cdb[0]) {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	tenByteVariant := CommandType(cdb[0]) == ModeSelect10
	parameterListLength := int(cdb[4])
	headerLength := 4
	if tenByteVariant {
		parameterListLength = int(binary.BigEndian.Uint16(cdb[7:9]))
		headerLength = 8
	}
	if parameterListLength == 0 {
		return StatusGood
	}
	if cdb[1]&pageFormatBitMask == 0 || cdb[1]&savePagesBitMask != 0 {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	if parameterListLength > IOVecLength(iovec) || parameterListLength < headerLength {
		return SetSenseData(sense, IllegalRequest, AscParameterListLengthError)
	}
	parameterList := make([]byte, parameterListLength)
	CopyFromIOVec(parameterList, iovec)

	blockDescriptorLength := int(parameterList[3])
	if tenByteVariant {
		blockDescriptorLength = int(binary.BigEndian.Uint16(parameterList[6:8]))
	}
	if headerLength+blockDescriptorLength > parameterListLength {
		return SetSenseData(sense, IllegalRequest, AscParameterListLengthError)
	}
	if err := unit.ModePages.verify(parameterList[headerLength+blockDescriptorLength:]); err != nil {
		log.Warnf("mode select rejected: %s", err)
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInParameterList)
	}
	return StatusGood
}
