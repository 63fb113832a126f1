// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

// CommandError is a sense key / additional sense code pair that a command
// fails with.
type CommandError struct {
	SenseKey            byte
	AdditionalSenseCode AdditionalSenseCode
}

func (err *CommandError) Error() string {
	return senseKeyToString(err.SenseKey) + ": " + err.AdditionalSenseCode.String()
}

const (
	NoSense        byte = 0x00
	RecoveredError byte = 0x01
	NotReady       byte = 0x02
	MediumError    byte = 0x03
	HardwareError  byte = 0x04
	IllegalRequest byte = 0x05
	UnitAttention  byte = 0x06
)

type AdditionalSenseCode uint16

var (
	// Key 0: No Sense Errors
	NoAdditionalSense AdditionalSenseCode = 0x0000

	// Key 3: Medium errors
	AscWriteError AdditionalSenseCode = 0x0c00
	AscReadError  AdditionalSenseCode = 0x1100

	// Key 2: Not ready
	AscBecomingReady    AdditionalSenseCode = 0x0401
	AscMediumNotPresent AdditionalSenseCode = 0x3a00

	// Key 5: Illegal Request
	AscParameterListLengthError    AdditionalSenseCode = 0x1a00
	AscInvalidOpCode               AdditionalSenseCode = 0x2000
	AscLbaOutOfRange               AdditionalSenseCode = 0x2100
	AscInvalidFieldInCdb           AdditionalSenseCode = 0x2400
	AscInvalidFieldInParameterList AdditionalSenseCode = 0x2600
	AscSavingParmsUnsup            AdditionalSenseCode = 0x3900
)

func (asc AdditionalSenseCode) String() string {
	names := map[AdditionalSenseCode]string{
		NoAdditionalSense:              "NO ADDITIONAL SENSE",
		AscWriteError:                  "WRITE ERROR",
		AscReadError:                   "UNRECOVERED READ ERROR",
		AscBecomingReady:               "BECOMING READY",
		AscMediumNotPresent:            "MEDIUM NOT PRESENT",
		AscParameterListLengthError:    "PARAMETER LIST LENGTH ERROR",
		AscInvalidOpCode:               "INVALID COMMAND OPERATION CODE",
		AscLbaOutOfRange:               "LBA OUT OF RANGE",
		AscInvalidFieldInCdb:           "INVALID FIELD IN CDB",
		AscInvalidFieldInParameterList: "INVALID FIELD IN PARAMETER LIST",
		AscSavingParmsUnsup:            "SAVING PARAMETERS NOT SUPPORTED",
	}
	if name, ok := names[asc]; ok {
		return name
	}
	return "ASC/ASCQ unknown"
}

func senseKeyToString(key byte) string {
	switch key {
	case NoSense:
		return "NO SENSE"
	case RecoveredError:
		return "RECOVERED ERROR"
	case NotReady:
		return "NOT READY"
	case MediumError:
		return "MEDIUM ERROR"
	case HardwareError:
		return "HARDWARE ERROR"
	case IllegalRequest:
		return "ILLEGAL REQUEST"
	case UnitAttention:
		return "UNIT ATTENTION"
	default:
		return "UNKNOWN SENSE KEY"
	}
}
