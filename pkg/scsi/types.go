// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"fmt"
)

type CommandType byte

const (
	TestUnitReady      CommandType = 0x00
	RequestSense       CommandType = 0x03
	FormatUnit         CommandType = 0x04
	Read6              CommandType = 0x08
	Write6             CommandType = 0x0a
	Inquiry            CommandType = 0x12
	ModeSelect6        CommandType = 0x15
	ModeSense6         CommandType = 0x1a
	StartStop          CommandType = 0x1b
	ReadCapacity10     CommandType = 0x25
	Read10             CommandType = 0x28
	Write10            CommandType = 0x2a
	SynchronizeCache10 CommandType = 0x35
	ModeSelect10       CommandType = 0x55
	ModeSense10        CommandType = 0x5a
	Read16             CommandType = 0x88
	Write16            CommandType = 0x8a
	SynchronizeCache16 CommandType = 0x91
	WriteSame16        CommandType = 0x93
	ServiceActionIn16  CommandType = 0x9e
	ReportLuns         CommandType = 0xa0
	// ReportSupportedTaskManagementFunctions with the same opcode
	OperationCodeMaintenanceIn CommandType = 0xa3
	Read12                     CommandType = 0xa8
	Write12                    CommandType = 0xaa
)

const (
	ServiceActionReportSupportedOperationCodes byte = 0x0c
	ServiceActionReadCapacity16                byte = 0x10
	serviceActionBitMask                       byte = 0x1f
)

// ServiceAction extracts the service action field of a variable opcode CDB.
func ServiceAction(cdb []byte) byte {
	if len(cdb) < 2 {
		return 0
	}
	return cdb[1] & serviceActionBitMask
}

// SenseBufferSize is the size of the sense area handed out with every command.
const SenseBufferSize = 96

// Status is the SAM status a command completes with. Negative values are
// reserved for handler outcomes that are not SCSI statuses.
type Status int

const (
	StatusGood                Status = 0x00
	StatusCheckCondition      Status = 0x02
	StatusBusy                Status = 0x08
	StatusReservationConflict Status = 0x18
	StatusTaskAborted         Status = 0x40
)

func (status Status) String() string {
	switch status {
	case StatusGood:
		return "GOOD"
	case StatusCheckCondition:
		return "CHECK CONDITION"
	case StatusBusy:
		return "BUSY"
	case StatusReservationConflict:
		return "RESERVATION CONFLICT"
	case StatusTaskAborted:
		return "TASK ABORTED"
	default:
		return fmt.Sprintf("status(%d)", int(status))
	}
}

type SCSIDeviceType byte

const (
	TypeDisk    SCSIDeviceType = 0x00
	TypeUnknown SCSIDeviceType = 0x1f
)

var operationCodeNames = map[CommandType]string{
	TestUnitReady:              "TestUnitReady",
	RequestSense:               "RequestSense",
	FormatUnit:                 "FormatUnit",
	Read6:                      "Read6",
	Write6:                     "Write6",
	Inquiry:                    "Inquiry",
	ModeSelect6:                "ModeSelect6",
	ModeSense6:                 "ModeSense6",
	StartStop:                  "StartStop",
	ReadCapacity10:             "ReadCapacity10",
	Read10:                     "Read10",
	Write10:                    "Write10",
	SynchronizeCache10:         "SynchronizeCache10",
	ModeSelect10:               "ModeSelect10",
	ModeSense10:                "ModeSense10",
	Read16:                     "Read16",
	Write16:                    "Write16",
	SynchronizeCache16:         "SynchronizeCache16",
	WriteSame16:                "WriteSame16",
	ServiceActionIn16:          "ServiceActionIn16",
	ReportLuns:                 "ReportLuns",
	OperationCodeMaintenanceIn: "OperationCodeMaintenanceIn",
	Read12:                     "Read12",
	Write12:                    "Write12",
}

func OperationCodeToString(commandType CommandType) string {
	result, ok := operationCodeNames[commandType]
	if !ok {
		return fmt.Sprintf("0x%x", int(commandType))
	}
	return result
}

func (commandType CommandType) String() string {
	return OperationCodeToString(commandType)
}
