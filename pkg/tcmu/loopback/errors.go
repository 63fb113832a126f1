// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package loopback

import "fmt"

type ErrDeviceExists struct {
	Name string
}

func (err ErrDeviceExists) Error() string {
	return fmt.Sprintf("device %q already exists", err.Name)
}

type ErrUnknownDevice struct {
	Name string
}

func (err ErrUnknownDevice) Error() string {
	return fmt.Sprintf("device %q does not exist", err.Name)
}

type ErrConfigRejected struct {
	Config string
	Reason string
}

func (err ErrConfigRejected) Error() string {
	if err.Reason == "" {
		return fmt.Sprintf("config %q rejected by handler", err.Config)
	}
	return fmt.Sprintf("config %q rejected by handler: %s", err.Config, err.Reason)
}

type ErrClosed struct{}

func (err ErrClosed) Error() string {
	return "framework is closed"
}
