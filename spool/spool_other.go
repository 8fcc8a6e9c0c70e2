//go:build !linux && !darwin && !windows

package spool

import (
	"context"
	"fmt"
	"runtime"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/render"
)

func Submit(ctx context.Context, out *render.Output, desc printers.Descriptor, logger Logger) (Handle, error) {
	return Handle{}, fmt.Errorf("print submission is not supported on %s", runtime.GOOS)
}

type unsupportedProber struct{}

func newPlatformProber(logger Logger) JobProber {
	return unsupportedProber{}
}

func (unsupportedProber) Probe(ctx context.Context, handle Handle) (Observation, error) {
	return Observation{}, fmt.Errorf("spooler probing is not supported on %s", runtime.GOOS)
}
