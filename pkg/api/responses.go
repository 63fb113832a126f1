// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

type Response struct {
	Type   string
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type DeviceRepresentation struct {
	Name      string `json:"name"`
	Config    string `json:"config"`
	Path      string `json:"path"`
	BlockSize uint32 `json:"block_size"`
	NumLbas   uint64 `json:"num_lbas"`
	Residual  uint64 `json:"residual,omitempty"`
}

func (device DeviceRepresentation) describe(indent string) string {
	path := device.Path
	if path == "" {
		path = "(null)"
	}
	return fmt.Sprintf(
		"%sDevice: %s\n%s  Config: %s\n%s  Store: %s\n%s  Blocks: %d x %d bytes\n",
		indent, device.Name,
		indent, device.Config,
		indent, path,
		indent, device.NumLbas, device.BlockSize,
	)
}

type AttachResponse struct {
	Device DeviceRepresentation `json:"device"`
}

func (response AttachResponse) ToCmdlineOutput() string {
	return "Successfully attached device\n" + response.Device.describe("  ")
}

type DetachResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (response DetachResponse) ToCmdlineOutput() string {
	if response.Path == "" {
		return fmt.Sprintf("Detached device '%s'", response.Name)
	}
	return fmt.Sprintf("Detached device '%s', released '%s'", response.Name, response.Path)
}

// ListResponse keeps registration order.
type ListResponse []DeviceRepresentation

func (response ListResponse) ToCmdlineOutput() string {
	var result strings.Builder
	result.WriteString("Listed devices: \n")
	for _, device := range response {
		result.WriteString(device.describe("  "))
	}
	return result.String()
}

type ExecuteResponse struct {
	Status     int    `json:"status"`
	StatusName string `json:"status_name"`
	Sense      []byte `json:"sense,omitempty"`
	DataIn     []byte `json:"data_in,omitempty"`
}

func (response ExecuteResponse) ToCmdlineOutput() string {
	result := fmt.Sprintf("Status: %s (%d)\n", response.StatusName, response.Status)
	if len(response.Sense) > 0 {
		result += "Sense:\n" + hex.Dump(response.Sense)
	}
	if len(response.DataIn) > 0 {
		result += "Data in:\n" + hex.Dump(response.DataIn)
	}
	return result
}
