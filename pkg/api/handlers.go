// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"context"
	"encoding/json"
	"sync"

	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/target"
	"tcmutarget/pkg/tcmu"
	"tcmutarget/pkg/tcmu/loopback"
)

// maxDataLength bounds the data in buffer of EXECUTE.
const maxDataLength = 16 << 20

type DemonApiHandler struct {
	framework *loopback.Framework
	registry  *target.Registry
	// lifecycle requests are applied one at a time
	apiLock sync.Mutex
}

func NewDemonApiHandler(framework *loopback.Framework, registry *target.Registry) *DemonApiHandler {
	return &DemonApiHandler{framework: framework, registry: registry}
}

func (handler *DemonApiHandler) represent(device *loopback.Device) (DeviceRepresentation, bool) {
	state, ok := handler.registry.Lookup(device)
	if !ok {
		return DeviceRepresentation{}, false
	}
	return DeviceRepresentation{
		Name:      device.Name(),
		Config:    device.ConfigString(),
		Path:      state.Path(),
		BlockSize: state.BlockSize,
		NumLbas:   state.NumLbas,
		Residual:  state.Residual,
	}, true
}

func (handler *DemonApiHandler) Attach(ctx context.Context, request AttachRequest) (*AttachResponse, error) {
	if request.Name == "" {
		return nil, ErrInconsistentRequestParameters{Reason: "device name is empty"}
	}
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	err := handler.framework.AddDevice(ctx, loopback.DeviceConfig{
		Name:      request.Name,
		Config:    request.Config,
		BlockSize: request.BlockSize,
		Size:      request.Size,
	})
	if err != nil {
		return nil, err
	}
	device, ok := handler.framework.Device(request.Name)
	if !ok {
		return nil, target.ErrDeviceNotFound{Name: request.Name}
	}
	representation, ok := handler.represent(device)
	if !ok {
		return nil, target.ErrDeviceNotFound{Name: request.Name}
	}
	return &AttachResponse{Device: representation}, nil
}

func (handler *DemonApiHandler) Detach(ctx context.Context, request DetachRequest) (*DetachResponse, error) {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	response := &DetachResponse{Name: request.Name}
	if device, ok := handler.framework.Device(request.Name); ok {
		if state, ok := handler.registry.Lookup(device); ok {
			response.Path = state.Path()
		}
	}
	if err := handler.framework.RemoveDevice(ctx, request.Name); err != nil {
		return nil, err
	}
	return response, nil
}

func (handler *DemonApiHandler) List() ListResponse {
	entries := handler.registry.List()
	response := make(ListResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, DeviceRepresentation{
			Name:      entry.Device.Name(),
			Config:    entry.Device.ConfigString(),
			Path:      entry.State.Path(),
			BlockSize: entry.State.BlockSize,
			NumLbas:   entry.State.NumLbas,
			Residual:  entry.State.Residual,
		})
	}
	return response
}

func (handler *DemonApiHandler) Execute(ctx context.Context, request ExecuteRequest) (*ExecuteResponse, error) {
	if len(request.CDB) == 0 {
		return nil, ErrInconsistentRequestParameters{Reason: "empty CDB"}
	}
	if len(request.DataOut) > 0 && request.AllocationLength > 0 {
		return nil, ErrInconsistentRequestParameters{Reason: "data out and allocation length are exclusive"}
	}
	if request.AllocationLength > maxDataLength {
		return nil, ErrInconsistentRequestParameters{Reason: "allocation length is too large"}
	}
	device, ok := handler.framework.Device(request.Name)
	if !ok {
		return nil, target.ErrDeviceNotFound{Name: request.Name}
	}
	buffer := request.DataOut
	if len(buffer) == 0 {
		buffer = make([]byte, request.AllocationLength)
	}
	command := tcmu.NewCommand(request.CDB, buffer)
	status, err := device.Execute(ctx, command)
	if err != nil {
		return nil, err
	}
	response := &ExecuteResponse{Status: int(status), StatusName: tcmu.StatusToString(status)}
	if status == scsi.StatusCheckCondition {
		response.Sense = command.Sense
	}
	if len(request.DataOut) == 0 && status == scsi.StatusGood {
		response.DataIn = buffer
	}
	return response, nil
}

func decodeAndRun[ReqType, RespType any](
	request *Request,
	run func(ReqType) (*RespType, error),
) Response {
	command := new(ReqType)
	err := json.Unmarshal(request.Command, command)
	if err != nil {
		return ErrorResponse(err)
	}
	result, err := run(*command)
	if err != nil {
		return ErrorResponse(err)
	}
	response := Response{Type: request.Type}
	response.Result, err = json.Marshal(result)
	if err != nil {
		return ErrorResponse(err)
	}
	return response
}

func (handler *DemonApiHandler) HandleRequest(ctx context.Context, request *Request) Response {
	switch request.Type {
	case TypeAttach:
		return decodeAndRun(request, func(command AttachRequest) (*AttachResponse, error) {
			return handler.Attach(ctx, command)
		})
	case TypeDetach:
		return decodeAndRun(request, func(command DetachRequest) (*DetachResponse, error) {
			return handler.Detach(ctx, command)
		})
	case TypeExecute:
		return decodeAndRun(request, func(command ExecuteRequest) (*ExecuteResponse, error) {
			return handler.Execute(ctx, command)
		})
	case TypeList:
		result, err := json.Marshal(handler.List())
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Type: TypeList, Result: result}
	default:
		return ErrorResponse(ErrUnknownRequestType{Type: request.Type})
	}
}

func ErrorResponse(err error) Response {
	return Response{Error: err.Error(), Result: json.RawMessage{'{', '}'}, Type: TypeEmptyResponse}
}
