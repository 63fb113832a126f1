// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import "encoding/json"

const (
	TypeEmptyResponse = "EMPTY"
	TypeAttach        = "ATTACH"
	TypeDetach        = "DETACH"
	TypeList          = "LIST"
	TypeExecute       = "EXECUTE"
)

type Request struct {
	Type    string          `json:"type"`
	Command json.RawMessage `json:"command"`
}

type AttachRequest struct {
	Name string `json:"name"`
	// Config is "<subtype>/<path>", the path may be empty.
	Config    string `json:"config"`
	Size      uint64 `json:"size"`
	BlockSize uint32 `json:"block_size"`
}

type DetachRequest struct {
	Name string `json:"name"`
}

// ExecuteRequest runs a single CDB. DataOut is the payload of a write,
// otherwise AllocationLength bytes are reserved for data in.
type ExecuteRequest struct {
	Name             string `json:"name"`
	CDB              []byte `json:"cdb"`
	DataOut          []byte `json:"data_out,omitempty"`
	AllocationLength uint32 `json:"allocation_length,omitempty"`
}

func ParseRequest(data []byte) (*Request, error) {
	request := &Request{}
	err := json.Unmarshal(data, request)
	if err != nil {
		return nil, err
	}
	return request, nil
}
