// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

// Dispatch runs command against state and returns the status to complete it
// with. Storage failures are reported as sense data with CHECK CONDITION,
// commands outside of the supported set yield tcmu.StatusNotHandled and
// leave the sense buffer untouched.
func Dispatch(state *BackendState, command *tcmu.Command) scsi.Status {
	log := logger.GetLogger()
	cdb := command.CDB
	if len(cdb) == 0 {
		log.Warnf("%s: empty command block", state.Name)
		return tcmu.StatusNotHandled
	}
	operationCode := scsi.CommandType(cdb[0])
	log.Debugf("%s: dispatching %s", state.Name, operationCode)
	switch operationCode {
	case scsi.Inquiry:
		return scsi.EmulateInquiry(state.Unit, cdb, command.IOVec, command.Sense)
	case scsi.TestUnitReady:
		return scsi.EmulateTestUnitReady(cdb, command.IOVec, command.Sense)
	case scsi.ServiceActionIn16:
		if scsi.ServiceAction(cdb) == scsi.ServiceActionReadCapacity16 {
			return scsi.EmulateReadCapacity16(state.NumLbas, state.BlockSize, cdb, command.IOVec, command.Sense)
		}
		return notHandled(state, cdb)
	case scsi.OperationCodeMaintenanceIn:
		if scsi.ServiceAction(cdb) == scsi.ServiceActionReportSupportedOperationCodes {
			return scsi.EmulateReportSupportedOperationCodes(cdb, command.IOVec, command.Sense)
		}
		return notHandled(state, cdb)
	case scsi.ModeSense6, scsi.ModeSense10:
		return scsi.EmulateModeSense(state.Unit, cdb, command.IOVec, command.Sense)
	case scsi.ModeSelect6, scsi.ModeSelect10:
		return scsi.EmulateModeSelect(state.Unit, cdb, command.IOVec, command.Sense)
	case scsi.Read6, scsi.Read10, scsi.Read12, scsi.Read16:
		return handleRead(state, command)
	case scsi.Write6, scsi.Write10, scsi.Write12, scsi.Write16:
		return handleWrite(state, command)
	case scsi.SynchronizeCache10, scsi.SynchronizeCache16:
		return handleSync(state, command)
	default:
		return notHandled(state, cdb)
	}
}

func notHandled(state *BackendState, cdb []byte) scsi.Status {
	logger.GetLogger().Warnf("%s: unknown command %x", state.Name, cdb[0])
	return tcmu.StatusNotHandled
}

// transferArea returns the byte offset and length a READ or WRITE addresses.
// A non-zero sense code reports a malformed or out of range command.
func transferArea(state *BackendState, command *tcmu.Command) (offset int64, length uint64, failure scsi.AdditionalSenseCode) {
	if len(command.CDB) < scsi.CDBLength(command.CDB[0]) {
		return 0, 0, scsi.AscInvalidFieldInCdb
	}
	logicalBlockAddress := scsi.LogicalBlockAddress(command.CDB)
	transferLength := uint64(scsi.TransferLength(command.CDB))
	if !scsi.ValidateOffsetLength(transferLength, logicalBlockAddress, state.NumLbas) {
		return 0, 0, scsi.AscLbaOutOfRange
	}
	return int64(logicalBlockAddress * uint64(state.BlockSize)), transferLength * uint64(state.BlockSize), 0
}

// readChunk bounds the scratch buffer used for the part of a READ that does
// not fit into the data buffers.
const readChunk = 1 << 20

// handleRead reads the whole addressed range even when the data buffers are
// shorter, the surplus is read and dropped so that store failures still
// surface.
func handleRead(state *BackendState, command *tcmu.Command) scsi.Status {
	offset, length, failure := transferArea(state, command)
	if failure != 0 {
		return scsi.SetSenseData(command.Sense, scsi.IllegalRequest, failure)
	}
	if length == 0 {
		return scsi.StatusGood
	}
	kept := min(length, uint64(scsi.IOVecLength(command.IOVec)))
	buffer := make([]byte, kept)
	if err := readRange(state, buffer, offset, length); err != nil {
		logger.GetLogger().Debugf("%s: read of %d bytes at %d failed: %s", state.Name, length, offset, err)
		return scsi.SetSenseData(command.Sense, scsi.MediumError, scsi.AscReadError)
	}
	scsi.CopyToIOVec(command.IOVec, buffer)
	return scsi.StatusGood
}

// readRange fills buffer from offset and reads on up to offset+length.
func readRange(state *BackendState, buffer []byte, offset int64, length uint64) error {
	if len(buffer) > 0 {
		if _, err := state.ReadAt(buffer, offset); err != nil {
			return err
		}
	}
	var scratch []byte
	for done := uint64(len(buffer)); done < length; {
		size := min(length-done, readChunk)
		if scratch == nil {
			scratch = make([]byte, size)
		}
		if _, err := state.ReadAt(scratch[:size], offset+int64(done)); err != nil {
			return err
		}
		done += size
	}
	return nil
}

func handleWrite(state *BackendState, command *tcmu.Command) scsi.Status {
	log := logger.GetLogger()
	offset, length, failure := transferArea(state, command)
	if failure != 0 {
		return scsi.SetSenseData(command.Sense, scsi.IllegalRequest, failure)
	}
	if length == 0 {
		return scsi.StatusGood
	}
	if available := uint64(scsi.IOVecLength(command.IOVec)); available < length {
		log.Warnf("%s: write of %d bytes carries only %d bytes of data", state.Name, length, available)
		return scsi.SetSenseData(command.Sense, scsi.IllegalRequest, scsi.AscInvalidFieldInCdb)
	}
	buffer := make([]byte, length)
	scsi.CopyFromIOVec(buffer, command.IOVec)
	if _, err := state.WriteAt(buffer, offset); err != nil {
		log.Errorf("%s: write of %d bytes at %d failed: %s", state.Name, length, offset, err)
		return scsi.SetSenseData(command.Sense, scsi.MediumError, scsi.AscWriteError)
	}
	log.Debugf("%s: write data at 0x%x for length %d", state.Name, offset, length)
	if scsi.ForceUnitAccess(command.CDB) {
		if err := state.DataSync(); err != nil {
			log.Errorf("%s: sync after FUA write failed: %s", state.Name, err)
			return scsi.SetSenseData(command.Sense, scsi.MediumError, scsi.AscWriteError)
		}
	}
	return scsi.StatusGood
}

func handleSync(state *BackendState, command *tcmu.Command) scsi.Status {
	if err := state.DataSync(); err != nil {
		logger.GetLogger().Errorf("%s: sync failed: %s", state.Name, err)
		return scsi.SetSenseData(command.Sense, scsi.MediumError, scsi.AscWriteError)
	}
	return scsi.StatusGood
}
