// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"encoding/hex"

	uuid "github.com/satori/go.uuid"
)

// deviceNamespace seeds the name based identifiers of logical units so that a
// device keeps its serial number and NAA identifier across restarts.
var deviceNamespace = uuid.NewV5(uuid.NamespaceURL, "tcmutarget")

type SCSILuPhyAttribute struct {
	SCSISN             string
	VendorID           string
	ProductID          string
	ProductRev         string
	VersionDescription [16]byte
	// Peripheral device type
	DeviceType SCSIDeviceType
	// Logical Unit online
	Online                                bool
	LogicalBlocksPerPhysicalBlockExponent int // LBPPBE
	// Lowest aligned LBA
	LowestAlignedLBA int
}

// LogicalUnit is what the emulation routines know about the device they
// answer for.
type LogicalUnit struct {
	Name                string
	ID                  uuid.UUID
	BlockSize           uint32
	NumLbas             uint64
	Attrs               SCSILuPhyAttribute
	ModePages           ModePages
	ModeBlockDescriptor []byte
}

// NewLogicalUnit describes an online direct access device named name with
// numLbas blocks of blockSize bytes.
func NewLogicalUnit(name string, blockSize uint32, numLbas uint64) *LogicalUnit {
	logicalUnit := &LogicalUnit{
		Name:      name,
		ID:        uuid.NewV5(deviceNamespace, name),
		BlockSize: blockSize,
		NumLbas:   numLbas,
	}
	logicalUnit.Init(TypeDisk)
	logicalUnit.Attrs.Online = true
	return logicalUnit
}

func (logicalUnit *LogicalUnit) Init(deviceType SCSIDeviceType) {
	// init LU's phy attribute
	logicalUnit.Attrs.DeviceType = deviceType
	logicalUnit.Attrs.VendorID = "LIO-ORG"
	logicalUnit.Attrs.ProductID = "TCMU device"
	logicalUnit.Attrs.ProductRev = "0002"
	// 32 hex digits, fits the unit serial number page without padding
	logicalUnit.Attrs.SCSISN = hex.EncodeToString(logicalUnit.ID.Bytes())
	logicalUnit.Attrs.VersionDescription = [16]byte{
		0x03, 0x20, // SBC-2 no version claimed
		0x03, 0x00, // SPC-3 no version claimed
		0x00, 0x60, // SAM-3 no version claimed
	}
	logicalUnit.Attrs.LogicalBlocksPerPhysicalBlockExponent = 0

	pages := []ModePage{
		// Read-Write Error Recovery: AWRE and ARRE set
		{0x01, 0, []byte{0xc0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		// Caching Page: write cache enabled, FUA forces a sync
		{0x08, 0, []byte{0x14, 0, 0xff, 0xff, 0, 0, 0xff, 0xff, 0xff, 0xff, 0x80, 0x14, 0, 0, 0, 0, 0, 0}},
		// Control page
		{0x0a, 0, []byte{2, 0x10, 0, 0, 0, 0, 0, 0, 2, 0}},
	}
	logicalUnit.ModePages = pages
	mbd := marshalUint32(uint32(0xffffffff))
	if logicalUnit.NumLbas>>32 == 0 {
		mbd = marshalUint32(uint32(logicalUnit.NumLbas))
	}
	logicalUnit.ModeBlockDescriptor = append(mbd, marshalUint32(logicalUnit.BlockSize)...)
}
