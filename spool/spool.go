// Package spool hands rendered output to the OS print system and watches
// the resulting spooler job until it reaches a terminal state.
package spool

import (
	"context"
)

// Handle identifies a submitted job inside the OS spooler. OSJobID is 0
// when the platform path could not recover one (shell submission,
// synchronous drivers); monitoring adapts.
type Handle struct {
	PrinterName string
	OSJobID     int
}

// JobState is one observation of a spooled job.
type JobState int

const (
	// StateMissing means the job is no longer known to the spooler.
	StateMissing JobState = iota
	// StateQueued means the job is waiting, neither printing nor in error.
	StateQueued
	StatePrinting
	StatePrinted
	StateCancelled
	StateAborted
	// StateBlocked covers transient device trouble: paper out, offline,
	// needs intervention. The job is still in the spooler.
	StateBlocked
)

// Observation is the result of probing one job once.
type Observation struct {
	State  JobState
	Detail string
}

// JobProber looks up the current spooler state of a job. Platform
// implementations live in prober_unix.go and prober_windows.go; tests
// inject fakes.
type JobProber interface {
	Probe(ctx context.Context, handle Handle) (Observation, error)
}

// StatusUpdate is delivered to the monitor callback. Status is "printing",
// "completed" or "failed"; exactly one terminal update is delivered per
// monitoring session.
type StatusUpdate struct {
	Status   string
	HasError bool
	Detail   string
}

const (
	StatusPrinting  = "printing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StatusFunc receives monitor updates.
type StatusFunc func(StatusUpdate)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}
