// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package common

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

type errBackend struct{}

func (errBackend) Error() string {
	return "backend failed"
}

func TestRaiseFromKeepsBothCauses(t *testing.T) {
	err := RaiseFrom(fs.ErrNotExist, errBackend{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("base error is not reachable from %q", err)
	}
	var backendErr errBackend
	if !errors.As(err, &backendErr) {
		t.Fatalf("current error is not reachable from %q", err)
	}
	if !strings.HasPrefix(err.Error(), fs.ErrNotExist.Error()+"\n") {
		t.Errorf("message must start with the base error, received %q", err.Error())
	}
	if !strings.Contains(err.Error(), "TestRaiseFromKeepsBothCauses") {
		t.Errorf("message must contain the raising function, received %q", err.Error())
	}
}

func TestRaiseFromWithoutBase(t *testing.T) {
	err := RaiseFrom(nil, errBackend{})
	if !strings.HasPrefix(err.Error(), "backend failed") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Errorf("unrelated error matched")
	}
}
