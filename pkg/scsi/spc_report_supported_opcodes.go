// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"encoding/binary"

	"tcmutarget/pkg/logger"
)

const (
	reportAllReportingOption                 = byte(0x00)
	reportSingleReportingOption              = byte(0x01)
	reportSingleServiceActionReportingOption = byte(0x02)
	reportSingleReportingOptionAllowBoth     = byte(0x03)
)

var timeoutsDescriptor = []byte{
	// Descriptor length
	0x00, 0x0a,
	// Reserved
	0x00,
	// Command specific
	0x00,
	// Nominal command processing timeout
	0x00, 0x00, 0x00, 0x00,
	// Recommended command timeout
	0x00, 0x00, 0x00, 0x00,
}

type commandDescription struct {
	operationCode    CommandType
	serviceAction    byte
	hasServiceAction bool
	// CDB usage data: bits the device server evaluates
	usage []byte
}

// supportedCommands lists what a device answers, in the order REPORT
// SUPPORTED OPERATION CODES reports it.
var supportedCommands = []commandDescription{
	{TestUnitReady, 0, false, []byte{byte(TestUnitReady), 0x00, 0x00, 0x00, 0x00, 0x00}},
	{Read6, 0, false, []byte{byte(Read6), 0x1f, 0xff, 0xff, 0xff, 0x00}},
	{Write6, 0, false, []byte{byte(Write6), 0x1f, 0xff, 0xff, 0xff, 0x00}},
	{Inquiry, 0, false, []byte{byte(Inquiry), 0x01, 0xff, 0xff, 0xff, 0x00}},
	{ModeSelect6, 0, false, []byte{byte(ModeSelect6), 0x11, 0x00, 0x00, 0xff, 0x00}},
	{ModeSense6, 0, false, []byte{byte(ModeSense6), 0x08, 0xff, 0xff, 0xff, 0x00}},
	{Read10, 0, false, readWrite10Usage(Read10)},
	{Write10, 0, false, readWrite10Usage(Write10)},
	{SynchronizeCache10, 0, false, []byte{
		byte(SynchronizeCache10), 0x00,
		0xff, 0xff, 0xff, 0xff,
		0x00,
		0xff, 0xff,
		0x00,
	}},
	{ModeSelect10, 0, false, []byte{
		byte(ModeSelect10), 0x11,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0xff, 0xff,
		0x00,
	}},
	{ModeSense10, 0, false, []byte{
		byte(ModeSense10), 0x08,
		0xff, 0xff,
		0x00, 0x00, 0x00,
		0xff, 0xff,
		0x00,
	}},
	{Read16, 0, false, readWrite16Usage(Read16)},
	{Write16, 0, false, readWrite16Usage(Write16)},
	{SynchronizeCache16, 0, false, []byte{
		byte(SynchronizeCache16), 0x00,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff,
		0x00,
		0x00,
	}},
	{ServiceActionIn16, ServiceActionReadCapacity16, true, []byte{
		byte(ServiceActionIn16), ServiceActionReadCapacity16,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xff, 0xff, 0xff, 0xff,
		0x00,
		0x00,
	}},
	{OperationCodeMaintenanceIn, ServiceActionReportSupportedOperationCodes, true, []byte{
		byte(OperationCodeMaintenanceIn), ServiceActionReportSupportedOperationCodes,
		0x87,
		0xff,
		0xff, 0xff,
		0xff, 0xff, 0xff, 0xff,
		0x00,
		0x00,
	}},
	{Read12, 0, false, readWrite12Usage(Read12)},
	{Write12, 0, false, readWrite12Usage(Write12)},
}

func readWrite10Usage(operationCode CommandType) []byte {
	// despite not acting on DPO and FUA we allow these fields to be set
	const dpoFuaBitmask = byte(0x18)
	return []byte{
		byte(operationCode),
		dpoFuaBitmask,
		// Logical block address
		0xff, 0xff, 0xff, 0xff,
		// Group number
		0x00,
		// Transfer length
		0xff, 0xff,
		// control
		0x00,
	}
}

func readWrite12Usage(operationCode CommandType) []byte {
	const dpoFuaBitmask = byte(0x18)
	return []byte{
		byte(operationCode),
		dpoFuaBitmask,
		// Logical block address
		0xff, 0xff, 0xff, 0xff,
		// Transfer length
		0xff, 0xff, 0xff, 0xff,
		// Group number
		0x00,
		// control
		0x00,
	}
}

func readWrite16Usage(operationCode CommandType) []byte {
	const dpoFuaBitmask = byte(0x18)
	return []byte{
		byte(operationCode),
		dpoFuaBitmask,
		// Logical block address
		0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff,
		// Transfer length
		0xff, 0xff, 0xff, 0xff,
		// Group number
		0x00,
		// Control
		0x00,
	}
}

func findCommandDescription(operationCode CommandType, serviceAction byte) *commandDescription {
	for index := range supportedCommands {
		description := &supportedCommands[index]
		if description.operationCode == operationCode && description.serviceAction == serviceAction {
			return description
		}
	}
	return nil
}

func reportOpcodesAll(returnCommandsTimeoutsDescriptor bool) []byte {
	data := make([]byte, 4, 4+len(supportedCommands)*20)
	flags := byte(0x00)
	if returnCommandsTimeoutsDescriptor {
		// command timeouts descriptor present
		flags = byte(0x02)
	}
	for _, description := range supportedCommands {
		currentFlags := flags
		if description.hasServiceAction {
			currentFlags |= 0x01
		}
		data = append(
			data,
			byte(description.operationCode),
			// reserved
			0x00,
			// service action
			0x00, description.serviceAction,
			// reserved
			0x00,
			currentFlags,
			// command length
			0x00, byte(len(description.usage)),
		)
		if returnCommandsTimeoutsDescriptor {
			data = append(data, timeoutsDescriptor...)
		}
	}
	binary.BigEndian.PutUint32(data, uint32(len(data)-4))
	return data
}

func reportSingleOpCode(cdb []byte, reportingOptions byte, returnCommandsTimeoutsDescriptor bool) ([]byte, bool) {
	operationCode := CommandType(cdb[3])
	serviceAction := byte(0x00)
	switch reportingOptions {
	case reportSingleServiceActionReportingOption, reportSingleReportingOptionAllowBoth:
		// all service actions fit in a byte, the field is big endian
		serviceAction = cdb[5]
	}
	description := findCommandDescription(operationCode, serviceAction)
	if description == nil {
		return nil, false
	}
	switch reportingOptions {
	case reportSingleReportingOption:
		if description.hasServiceAction {
			return nil, false
		}
	case reportSingleServiceActionReportingOption:
		if !description.hasServiceAction {
			return nil, false
		}
	}
	support := byte(0x03) // supported in conformance with a SCSI standard
	if returnCommandsTimeoutsDescriptor {
		support |= 0x80
	}
	response := []byte{
		// Reserved
		0x00,
		// CTDP, CDLP(0), SUPPORT
		support,
		// CDB size
		0x00, byte(len(description.usage)),
	}
	response = append(response, description.usage...)
	if returnCommandsTimeoutsDescriptor {
		response = append(response, timeoutsDescriptor...)
	}
	return response, true
}

// EmulateReportSupportedOperationCodes Implements SCSI REPORT SUPPORTED OPERATION CODES
// Reference : SPC4r11
// 6.31 - REPORT SUPPORTED OPERATION CODES
func EmulateReportSupportedOperationCodes(cdb []byte, iovec [][]byte, sense []byte) Status {
	log := logger.GetLogger()
	const reportingOptionsBitmask = byte(0x07)
	const returnCommandTimeoutDescriptorBitMask = byte(0x80)
	if len(cdb) < 12 {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	reportingOptions := cdb[2] & reportingOptionsBitmask
	returnCommandsTimeoutsDescriptor := cdb[2]&returnCommandTimeoutDescriptorBitMask != 0
	allocationLength := int(binary.BigEndian.Uint32(cdb[6:10]))
	switch reportingOptions {
	case reportAllReportingOption:
		log.Debugf("Service Action: report all")
		respond(iovec, reportOpcodesAll(returnCommandsTimeoutsDescriptor), allocationLength)
		return StatusGood
	case reportSingleReportingOption,
		reportSingleServiceActionReportingOption,
		reportSingleReportingOptionAllowBoth:
		response, ok := reportSingleOpCode(cdb, reportingOptions, returnCommandsTimeoutsDescriptor)
		if !ok {
			return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
		}
		respond(iovec, response, allocationLength)
		return StatusGood
	default:
		log.Errorf("Unsupported reporting options %d", reportingOptions)
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
}
