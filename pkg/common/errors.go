// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package common

import (
	"fmt"
	"runtime"
)

// ReRaisableError chains a higher level error on top of the cause it was
// raised from. The cause stays reachable through errors.Is / errors.As.
type ReRaisableError struct {
	message      string
	currentError error
	base         error
}

func (err *ReRaisableError) Error() string {
	if err.base == nil {
		return err.message
	}
	return err.base.Error() + "\n" + err.message
}

func (err *ReRaisableError) Unwrap() []error {
	causes := make([]error, 0, 2)
	for _, cause := range []error{err.currentError, err.base} {
		if cause != nil {
			causes = append(causes, cause)
		}
	}
	return causes
}

type LineNumberedError interface {
	Error() string
	TraceInfo() string
}

// RaiseFrom reports current as caused by base, recording where it was raised.
func RaiseFrom(base error, current error) *ReRaisableError {
	var message string
	if lineNumberedError, ok := current.(LineNumberedError); ok {
		message = lineNumberedError.Error() + " " + lineNumberedError.TraceInfo()
	} else {
		message = current.Error() + " " + GetTraceInfo()
	}
	return &ReRaisableError{
		base:         base,
		message:      message,
		currentError: current,
	}
}

// GetTraceInfo names the caller of the function that called it.
func GetTraceInfo() string {
	pc, fileName, fileLine, ok := runtime.Caller(2)
	details := runtime.FuncForPC(pc)
	if ok && details != nil {
		return fmt.Sprintf("func %s() at %s:%d", details.Name(), fileName, fileLine)
	}
	return ""
}
