// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

type ErrApiRequestFailed struct {
	errorMessage string
}

func (apiErr ErrApiRequestFailed) Error() string {
	return strings.ReplaceAll(apiErr.errorMessage, `\n`, "\n")
}

type ErrUnexpectedResponseType struct {
	expected string
	received string
}

func (err ErrUnexpectedResponseType) Error() string {
	return fmt.Sprintf("expected %s response, received %s", err.expected, err.received)
}

// ClientRequester talks to the daemon, one connection per request.
type ClientRequester struct {
	socketPath string
	dialer     net.Dialer
}

func NewApiRequester(socketPath string) *ClientRequester {
	return &ClientRequester{socketPath: socketPath}
}

// roundTrip sends one request line and reads one response line. The
// deadline of ctx bounds the whole exchange.
func (api *ClientRequester) roundTrip(ctx context.Context, data []byte) ([]byte, error) {
	connection, err := api.dialer.DialContext(ctx, "unix", api.socketPath)
	if err != nil {
		return nil, err
	}
	defer connection.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := connection.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	stop := context.AfterFunc(ctx, func() { connection.Close() })
	defer stop()
	if _, err := connection.Write(append(data, '\n')); err != nil {
		return nil, err
	}
	line, err := bufio.NewReader(connection).ReadBytes('\n')
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return line, err
}

func (api *ClientRequester) request(ctx context.Context, request Request) (*Response, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	responseBytes, err := api.roundTrip(ctx, data)
	if err != nil {
		return nil, err
	}
	response := &Response{}
	if err := json.Unmarshal(responseBytes, response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &ErrApiRequestFailed{errorMessage: response.Error}
	}
	return response, nil
}

func call[ReqType, RespType any](
	ctx context.Context,
	api *ClientRequester,
	typeName string,
	command ReqType,
) (*RespType, error) {
	jsonCommand, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	response, err := api.request(ctx, Request{Type: typeName, Command: jsonCommand})
	if err != nil {
		return nil, err
	}
	if response.Type != typeName {
		return nil, &ErrUnexpectedResponseType{expected: typeName, received: response.Type}
	}
	result := new(RespType)
	if err := json.Unmarshal(response.Result, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (api *ClientRequester) Attach(ctx context.Context, request AttachRequest) (*AttachResponse, error) {
	return call[AttachRequest, AttachResponse](ctx, api, TypeAttach, request)
}

func (api *ClientRequester) Detach(ctx context.Context, name string) (*DetachResponse, error) {
	return call[DetachRequest, DetachResponse](ctx, api, TypeDetach, DetachRequest{Name: name})
}

func (api *ClientRequester) List(ctx context.Context) (ListResponse, error) {
	result, err := call[struct{}, ListResponse](ctx, api, TypeList, struct{}{})
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// Execute runs one CDB on a device. With DataOut empty, AllocationLength
// bytes of data in are returned.
func (api *ClientRequester) Execute(ctx context.Context, request ExecuteRequest) (*ExecuteResponse, error) {
	return call[ExecuteRequest, ExecuteResponse](ctx, api, TypeExecute, request)
}
