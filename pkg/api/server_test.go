// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/target"
	"tcmutarget/pkg/tcmu"
	"tcmutarget/pkg/tcmu/loopback"
)

type daemon struct {
	client     *ClientRequester
	storageDir string
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	storageDir := t.TempDir()
	stores := &target.Stores{Directory: storageDir, NullWrites: target.NullWritesAccept}
	loop, err := target.NewLoop(target.Options{MaxDevices: 2}, stores)
	require.NoError(t, err)
	framework, err := loopback.Initialize(loop.Handler("test", "file", "", stores.CheckConfig))
	require.NoError(t, err)

	socketPath := filepath.Join(t.TempDir(), "api.sock")
	server := NewApiServer(NewDemonApiHandler(framework, loop.Registry()), socketPath)
	listener, err := server.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	serveDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx, framework) }()
	go func() { serveDone <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-serveDone)
		assert.NoError(t, <-loopDone)
		framework.Close()
		loop.Close()
	})
	return &daemon{client: NewApiRequester(socketPath), storageDir: storageDir}
}

func rw10(opcode scsi.CommandType, logicalBlockAddress uint32, blocks uint16) []byte {
	cdb := make([]byte, 10)
	cdb[0] = byte(opcode)
	binary.BigEndian.PutUint32(cdb[2:6], logicalBlockAddress)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

func TestAttachListDetach(t *testing.T) {
	daemon := startDaemon(t)
	ctx := testContext(t)

	attached, err := daemon.client.Attach(ctx, AttachRequest{Name: "disk0", Config: "file/", Size: 1<<20, BlockSize: 512})
	require.NoError(t, err)
	assert.Equal(t, DeviceRepresentation{
		Name:      "disk0",
		Config:    "file/",
		Path:      filepath.Join(daemon.storageDir, "disk0"),
		BlockSize: 512,
		NumLbas:   2048,
	}, attached.Device)

	_, err = daemon.client.Attach(ctx, AttachRequest{Name: "disk0", Config: "file/", Size: 1<<20, BlockSize: 512})
	var requestErr *ErrApiRequestFailed
	require.ErrorAs(t, err, &requestErr)

	_, err = daemon.client.Attach(ctx, AttachRequest{Name: "disk1", Config: "file/", Size: 4096, BlockSize: 4096})
	require.NoError(t, err)
	listed, err := daemon.client.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "disk0", listed[0].Name)
	assert.Equal(t, "disk1", listed[1].Name)

	_, err = daemon.client.Attach(ctx, AttachRequest{Name: "disk2", Config: "file/", Size: 4096, BlockSize: 512})
	require.ErrorAs(t, err, &requestErr)
	assert.Contains(t, err.Error(), "capacity")

	detached, err := daemon.client.Detach(ctx, "disk0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(daemon.storageDir, "disk0"), detached.Path)
	listed, err = daemon.client.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "disk1", listed[0].Name)

	_, err = daemon.client.Detach(ctx, "disk0")
	assert.ErrorAs(t, err, &requestErr)
}

func TestAttachRejectedConfig(t *testing.T) {
	daemon := startDaemon(t)
	ctx := testContext(t)
	_, err := daemon.client.Attach(ctx, AttachRequest{Name: "disk0", Config: "null/", Size: 4096, BlockSize: 512})
	assert.Error(t, err)
	_, err = daemon.client.Attach(ctx, AttachRequest{Name: "", Config: "file/", Size: 4096, BlockSize: 512})
	assert.ErrorContains(t, err, "inconsistent request parameters")
	listed, err := daemon.client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestExecute(t *testing.T) {
	daemon := startDaemon(t)
	ctx := testContext(t)
	_, err := daemon.client.Attach(ctx, AttachRequest{Name: "disk0", Config: "file/", Size: 64*512, BlockSize: 512})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xa5, 0x5a}, 512)
	written, err := daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: rw10(scsi.Write10, 3, 2), DataOut: payload})
	require.NoError(t, err)
	assert.Equal(t, int(scsi.StatusGood), written.Status)
	assert.Empty(t, written.Sense)

	read, err := daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: rw10(scsi.Read10, 3, 2), AllocationLength: 1024})
	require.NoError(t, err)
	assert.Equal(t, int(scsi.StatusGood), read.Status)
	assert.Equal(t, payload, read.DataIn)

	outOfRange, err := daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: rw10(scsi.Read10, 64, 1), AllocationLength: 512})
	require.NoError(t, err)
	assert.Equal(t, int(scsi.StatusCheckCondition), outOfRange.Status)
	assert.Equal(t, scsi.IllegalRequest, scsi.SenseKey(outOfRange.Sense))
	assert.Empty(t, outOfRange.DataIn)

	unknown, err := daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: []byte{0xff, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, int(tcmu.StatusNotHandled), unknown.Status)
	assert.Equal(t, "NOT HANDLED", unknown.StatusName)

	_, err = daemon.client.Execute(ctx, ExecuteRequest{Name: "disk9", CDB: rw10(scsi.Read10, 0, 1), AllocationLength: 512})
	assert.ErrorContains(t, err, "disk9")
	_, err = daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: nil, AllocationLength: 512})
	assert.ErrorContains(t, err, "empty CDB")
	_, err = daemon.client.Execute(ctx, ExecuteRequest{Name: "disk0", CDB: rw10(scsi.Write10, 0, 1), DataOut: payload[:512], AllocationLength: 512})
	assert.ErrorContains(t, err, "exclusive")
}

func TestUnknownRequestType(t *testing.T) {
	daemon := startDaemon(t)
	ctx := testContext(t)
	_, err := daemon.client.request(ctx, Request{Type: "FORMAT", Command: json.RawMessage("{}")})
	assert.EqualError(t, err, ErrUnknownRequestType{Type: "FORMAT"}.Error())
}

func TestClientWithoutDaemon(t *testing.T) {
	client := NewApiRequester(filepath.Join(t.TempDir(), "absent.sock"))
	_, err := client.List(testContext(t))
	assert.Error(t, err)
}

func TestCmdlineOutput(t *testing.T) {
	listed := ListResponse{
		{Name: "disk0", Config: "file/", Path: "/srv/disk0", BlockSize: 512, NumLbas: 2048},
		{Name: "null0", Config: "null/", BlockSize: 4096, NumLbas: 16},
	}
	output := listed.ToCmdlineOutput()
	assert.Contains(t, output, "Device: disk0")
	assert.Contains(t, output, "Blocks: 2048 x 512 bytes")
	assert.Contains(t, output, "Store: (null)")

	executed := ExecuteResponse{Status: 2, StatusName: "CHECK CONDITION", Sense: []byte{0x70, 0, 0x05}}
	assert.Contains(t, executed.ToCmdlineOutput(), "Status: CHECK CONDITION (2)")
	assert.Contains(t, executed.ToCmdlineOutput(), "Sense:")
	assert.NotContains(t, executed.ToCmdlineOutput(), "Data in:")
}
