package spool

import (
	"context"
	"time"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultWatchLimit   = 120 * time.Second
	// Delay before declaring an id-less submission done. Synchronous
	// paths are not observable, so completion is assumed.
	defaultNoIDDelay = 3 * time.Second
)

// Monitor polls the OS spooler for submitted jobs and reports progress.
type Monitor struct {
	prober JobProber
	logger Logger

	pollInterval time.Duration
	watchLimit   time.Duration
	noIDDelay    time.Duration
}

// NewMonitor creates a monitor using the platform prober.
func NewMonitor(logger Logger) *Monitor {
	return NewMonitorWith(newPlatformProber(logger), logger)
}

// NewMonitorWith creates a monitor with an explicit prober.
func NewMonitorWith(prober JobProber, logger Logger) *Monitor {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Monitor{
		prober:       prober,
		logger:       logger,
		pollInterval: defaultPollInterval,
		watchLimit:   defaultWatchLimit,
		noIDDelay:    defaultNoIDDelay,
	}
}

// Watch follows handle until a terminal state and reports updates through
// onStatus. It returns a cancel function that stops the watch; a cancelled
// watch delivers no further updates, terminal included.
func (m *Monitor) Watch(ctx context.Context, handle Handle, onStatus StatusFunc) (cancel func()) {
	watchCtx, stop := context.WithCancel(ctx)
	go m.watch(watchCtx, handle, onStatus)
	return stop
}

func (m *Monitor) watch(ctx context.Context, handle Handle, onStatus StatusFunc) {
	if handle.OSJobID == 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.noIDDelay):
		}
		m.logger.Debug("no spooler id, assuming completion",
			"printer", handle.PrinterName)
		onStatus(StatusUpdate{Status: StatusCompleted, Detail: "no spooler id, assumed complete"})
		return
	}

	deadline := time.Now().Add(m.watchLimit)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	sawPrinting := false
	hasError := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			// A job still sitting in the spooler after the window most
			// likely printed without the state being observable.
			onStatus(StatusUpdate{Status: StatusCompleted, Detail: "monitoring window elapsed"})
			return
		}

		obs, err := m.prober.Probe(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Debug("spooler probe failed, will retry",
				"printer", handle.PrinterName, "jobId", handle.OSJobID, "error", err)
			continue
		}

		switch obs.State {
		case StateMissing:
			switch {
			case hasError:
				onStatus(StatusUpdate{Status: StatusFailed, Detail: "job removed after device error"})
			case sawPrinting:
				onStatus(StatusUpdate{Status: StatusCompleted})
			default:
				onStatus(StatusUpdate{Status: StatusFailed, Detail: "job removed before printing"})
			}
			return

		case StatePrinted:
			onStatus(StatusUpdate{Status: StatusCompleted})
			return

		case StateCancelled, StateAborted:
			detail := obs.Detail
			if detail == "" {
				detail = "job cancelled by spooler"
			}
			onStatus(StatusUpdate{Status: StatusFailed, Detail: detail})
			return

		case StateBlocked:
			hasError = true
			onStatus(StatusUpdate{Status: StatusPrinting, HasError: true, Detail: obs.Detail})

		case StatePrinting:
			sawPrinting = true
			hasError = false
			onStatus(StatusUpdate{Status: StatusPrinting})

		case StateQueued:
			// Still waiting, nothing to report.
		}
	}
}
