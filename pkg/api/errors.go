// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import "fmt"

type ErrUnknownRequestType struct {
	Type string
}

func (err ErrUnknownRequestType) Error() string {
	return fmt.Sprintf("unknown request type %s", err.Type)
}

type ErrInconsistentRequestParameters struct {
	Reason string
}

func (err ErrInconsistentRequestParameters) Error() string {
	return "inconsistent request parameters: " + err.Reason
}
