//go:build !linux && !darwin && !windows
// +build !linux,!darwin,!windows

package printers

import (
	"context"
	"fmt"
	"runtime"
)

// Enumerator is a stub on platforms without a supported print subsystem.
type Enumerator struct {
	logger Logger
}

// NewEnumerator creates a stub enumerator.
func NewEnumerator(logger Logger) *Enumerator {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Enumerator{logger: logger}
}

// Enumerate always fails: there is no print subsystem to query here.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Descriptor, error) {
	return nil, &EnumerationError{Err: fmt.Errorf("printer enumeration not supported on %s", runtime.GOOS)}
}
