//go:build windows
// +build windows

package spool

import (
	"context"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// spoolerProber observes jobs through EnumJobsW.
type spoolerProber struct {
	logger Logger
}

func newPlatformProber(logger Logger) JobProber {
	if logger == nil {
		logger = nullLogger{}
	}
	return &spoolerProber{logger: logger}
}

func (p *spoolerProber) Probe(ctx context.Context, handle Handle) (Observation, error) {
	namePtr, err := syscall.UTF16PtrFromString(handle.PrinterName)
	if err != nil {
		return Observation{}, fmt.Errorf("invalid printer name %q: %w", handle.PrinterName, err)
	}

	var printer syscall.Handle
	ret, _, callErr := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(namePtr)),
		uintptr(unsafe.Pointer(&printer)),
		0)
	if ret == 0 {
		return Observation{}, fmt.Errorf("OpenPrinter %s failed: %w", handle.PrinterName, callErr)
	}
	defer procClosePrinter.Call(uintptr(printer))

	var needed, returned uint32
	procEnumJobs.Call(
		uintptr(printer),
		0,   // FirstJob
		100, // NoJobs
		1,   // Level (JOB_INFO_1)
		0, 0,
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return Observation{State: StateMissing}, nil
	}

	buf := make([]byte, needed)
	ret, _, callErr = procEnumJobs.Call(
		uintptr(printer),
		0,
		100,
		1,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(needed),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&returned)))
	if ret == 0 {
		return Observation{}, fmt.Errorf("EnumJobs on %s failed: %w", handle.PrinterName, callErr)
	}

	infos := unsafe.Slice((*jobInfo1)(unsafe.Pointer(&buf[0])), returned)
	for i := range infos {
		if int(infos[i].JobID) != handle.OSJobID {
			continue
		}
		return observationFromStatus(infos[i].StatusCode,
			windows.UTF16PtrToString(infos[i].Status)), nil
	}
	return Observation{State: StateMissing}, nil
}

// observationFromStatus maps winspool job status flags, most conclusive
// first.
func observationFromStatus(status uint32, statusText string) Observation {
	switch {
	case status&(jobStatusPrinted|jobStatusComplete) != 0:
		return Observation{State: StatePrinted, Detail: statusText}
	case status&(jobStatusDeleted|jobStatusDeleting) != 0:
		return Observation{State: StateCancelled, Detail: statusText}
	case status&(jobStatusError|jobStatusOffline|jobStatusPaperOut|
		jobStatusBlockedDevq|jobStatusUserIntervention) != 0:
		return Observation{State: StateBlocked, Detail: statusText}
	case status&(jobStatusPrinting|jobStatusSpooling|jobStatusRestart) != 0:
		return Observation{State: StatePrinting, Detail: statusText}
	case status&jobStatusPaused != 0:
		return Observation{State: StateQueued, Detail: statusText}
	default:
		return Observation{State: StateQueued, Detail: statusText}
	}
}
