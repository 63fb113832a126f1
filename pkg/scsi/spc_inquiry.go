// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"encoding/binary"
	"fmt"
)

const (
	VersionSpc3 = byte(0x05)
)

/*
 * Code Set
 *
 *  1 - Designator fild contains binary values
 *  2 - Designator field contains ASCII printable chars
 *  3 - Designaotor field contains UTF-8
 */
const (
	InqCodeBin   = byte(1)
	InqCodeAscii = byte(2)
	InqCodeUtf8  = byte(3)
)

/*
 * Association field
 *
 * 00b - Associated with Logical Unit
 * 01b - Associated with target port
 * 10b - Associated with SCSI Target device
 * 11b - Reserved
 */
const (
	AssociatedLogicalUnit = byte(0x00)
)

/*
 * PERIPHERAL QUALIFIER field
 * 000b - A peripheral device having the indicated peripheral
 * 	device type is connected to this logical unit.
 * 001b - A peripheral device having the indicated peripheral device type
 * 	is not connected to this logical unit.
 */
const (
	PeripheralQualifierDeviceConnected  = byte(0x00)
	PeripheralQualifierDeviceNotConnect = byte(0x01 << 5)
)

const (
	InquiryHisup          = byte(0x10)
	InquiryStandardFormat = byte(0x02)
	InquiryCmdque         = byte(0x02)
)

/*
 * Designator type - SPC-4 Reference
 *
 * 1 - T10 vendor ID - 7.6.3.4
 * 3 - NAA - 7.6.3.6
 * 8 - SCSI name string - 7.6.3.11
 */
const (
	DesignatorTypeT10Vendor = 1
	DesignatorTypeNaa       = 3
	DesignatorTypeScsi      = 8
)

const (
	NaaLocal = uint64(0x3)
)

const (
	supportedVpdPagesVpdPageCode          = byte(0x00)
	unitSerialNumberVpdPageCode           = byte(0x80)
	deviceIdentificationVpdPageCode       = byte(0x83)
	blockLimitsVpdPageCode                = byte(0xB0)
	blockDeviceCharacteristicsVpdPageCode = byte(0xB1)
)

// largest transfer advertised in the block limits page, in blocks
const maximumTransferLength = uint32(8192)

func allVpdPagesCommonFirstByte(unit *LogicalUnit) byte {
	peripheralQualifier := PeripheralQualifierDeviceConnected
	peripheralDeviceType := byte(unit.Attrs.DeviceType)
	if !unit.Attrs.Online {
		peripheralQualifier = PeripheralQualifierDeviceNotConnect
	}
	return peripheralQualifier | peripheralDeviceType
}

func vpdPage(unit *LogicalUnit, pageCode byte, payload []byte) []byte {
	result := []byte{
		allVpdPagesCommonFirstByte(unit),
		pageCode,
		byte(len(payload) >> 8), byte(len(payload)), // page length in big endian
	}
	return append(result, payload...)
}

func supportedVpdPagesVpdPage(unit *LogicalUnit) []byte {
	return vpdPage(unit, supportedVpdPagesVpdPageCode, []byte{
		supportedVpdPagesVpdPageCode,
		unitSerialNumberVpdPageCode,
		deviceIdentificationVpdPageCode,
		blockLimitsVpdPageCode,
		blockDeviceCharacteristicsVpdPageCode,
	})
}

func unitSerialNumberVpdPage(unit *LogicalUnit) []byte {
	return vpdPage(unit, unitSerialNumberVpdPageCode, []byte(unit.Attrs.SCSISN))
}

func designationDescriptor(codeSet, association, designatorType byte, designator []byte) []byte {
	result := []byte{
		codeSet,
		(association << 4) | designatorType,
		0x00,
		byte(len(designator)),
	}
	return append(result, designator...)
}

func deviceIdentificationVpdPage(unit *LogicalUnit) []byte {
	// T10 vendor identification: 8 byte vendor followed by the serial
	vendorDesignator := []byte(fmt.Sprintf("%-8s%s", unit.Attrs.VendorID, unit.Attrs.SCSISN))
	// NAA locally assigned, the low 60 bits come from the unit identifier
	networkAddressAuthorityLocalShift := uint64(60)
	identifier := binary.BigEndian.Uint64(unit.ID.Bytes()[8:])
	networkAddressAuthority := marshalUint64(
		(identifier &^ (uint64(0xf) << networkAddressAuthorityLocalShift)) |
			(NaaLocal << networkAddressAuthorityLocalShift),
	)
	scsiName := paddedString(unit.Name, 4, 252)

	payload := designationDescriptor(InqCodeAscii, AssociatedLogicalUnit, DesignatorTypeT10Vendor, vendorDesignator)
	payload = append(payload,
		designationDescriptor(InqCodeBin, AssociatedLogicalUnit, DesignatorTypeNaa, networkAddressAuthority)...)
	payload = append(payload,
		designationDescriptor(InqCodeUtf8, AssociatedLogicalUnit, DesignatorTypeScsi, scsiName)...)
	return vpdPage(unit, deviceIdentificationVpdPageCode, payload)
}

func blockLimitsVpdPage(unit *LogicalUnit) []byte {
	payload := make([]byte, 0x3c)
	// MAXIMUM TRANSFER LENGTH
	binary.BigEndian.PutUint32(payload[4:8], maximumTransferLength)
	// OPTIMAL TRANSFER LENGTH
	binary.BigEndian.PutUint32(payload[8:12], maximumTransferLength)
	return vpdPage(unit, blockLimitsVpdPageCode, payload)
}

func blockDeviceCharacteristicsVpdPage(unit *LogicalUnit) []byte {
	payload := make([]byte, 0x3c)
	// medium rotation rate
	// 0001 - Non-rotating medium (e.g., solid state)
	payload[1] = 0x01
	return vpdPage(unit, blockDeviceCharacteristicsVpdPageCode, payload)
}

func standardInquiryData(unit *LogicalUnit) []byte {
	variadicLengthInquiryData := []byte{
		// SCCS(0) ACC(0) TPGS(0) 3PC(0) PROTECT(0)
		0x00,
		// ENCSERV(0) VS(0) MULTIP(0)
		0x00,
		// CMDQUE(1)
		InquiryCmdque,
	}
	// 8 bytes of left aligned ASCII
	t10VendorIdentification := []byte(fmt.Sprintf("%-8.8s", unit.Attrs.VendorID))
	variadicLengthInquiryData = append(variadicLengthInquiryData, t10VendorIdentification...)
	productIdentification := []byte(fmt.Sprintf("%-16.16s", unit.Attrs.ProductID))
	variadicLengthInquiryData = append(variadicLengthInquiryData, productIdentification...)
	productRevision := []byte(fmt.Sprintf("%-4.4s", unit.Attrs.ProductRev))
	variadicLengthInquiryData = append(variadicLengthInquiryData, productRevision...)
	variadicLengthInquiryData = append(
		variadicLengthInquiryData,
		0x00, 0x00, 0x00, 0x00, // 20 byte vendor specific
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, // 2 byte reserved and obsolete
	)
	variadicLengthInquiryData = append(
		variadicLengthInquiryData,
		unit.Attrs.VersionDescription[:]...,
	)
	result := []byte{
		allVpdPagesCommonFirstByte(unit),
		// Removable Media Bit (RMB = 0)
		0x00,
		// Version
		VersionSpc3,
		// NORMACA(0), HISUP(1), RESPONSE DATA FORMAT(2)
		InquiryHisup | InquiryStandardFormat,
		// ADDITIONAL LENGTH counts the bytes after this one
		byte(len(variadicLengthInquiryData)),
	}
	return append(result, variadicLengthInquiryData...)
}

// EmulateInquiry Implements SCSI Inquiry command
// The Inquiry command requests the device server to return information
// regarding the logical unit and SCSI target device.
// Reference : SPC4r11
// 6.6 - Inquiry
func EmulateInquiry(unit *LogicalUnit, cdb []byte, iovec [][]byte, sense []byte) Status {
	enableVitalProductDataBitmask := byte(0x01)
	if unit == nil || len(cdb) < 6 {
		return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
	}
	pageCode := cdb[2]
	allocationLength := int(binary.BigEndian.Uint16(cdb[3:5]))

	var data []byte
	if cdb[1]&enableVitalProductDataBitmask == 0 {
		if pageCode != 0 {
			return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
		}
		data = standardInquiryData(unit)
	} else {
		switch pageCode {
		case supportedVpdPagesVpdPageCode:
			data = supportedVpdPagesVpdPage(unit)
		case unitSerialNumberVpdPageCode:
			data = unitSerialNumberVpdPage(unit)
		case deviceIdentificationVpdPageCode:
			data = deviceIdentificationVpdPage(unit)
		case blockLimitsVpdPageCode:
			data = blockLimitsVpdPage(unit)
		case blockDeviceCharacteristicsVpdPageCode:
			data = blockDeviceCharacteristicsVpdPage(unit)
		default:
			return SetSenseData(sense, IllegalRequest, AscInvalidFieldInCdb)
		}
	}
	respond(iovec, data, allocationLength)
	return StatusGood
}
