//go:build linux || darwin

package spool

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// cupsProber observes jobs through lpstat. CUPS does not expose a reliable
// per-job "printing" state through lpstat, so any job still in the active
// queue counts as printing and disappearance means it left the device.
type cupsProber struct {
	logger Logger
}

func newPlatformProber(logger Logger) JobProber {
	if logger == nil {
		logger = nullLogger{}
	}
	return &cupsProber{logger: logger}
}

func (p *cupsProber) Probe(ctx context.Context, handle Handle) (Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	active, err := listJobIDs(ctx, handle.PrinterName, "not-completed")
	if err != nil {
		return Observation{}, err
	}
	if active[handle.OSJobID] {
		return Observation{State: StatePrinting}, nil
	}

	completed, err := listJobIDs(ctx, handle.PrinterName, "completed")
	if err != nil {
		// The active lookup already succeeded; treat the job as gone
		// rather than failing the whole probe.
		p.logger.Debug("lpstat completed lookup failed",
			"printer", handle.PrinterName, "error", err)
		return Observation{State: StateMissing}, nil
	}
	if completed[handle.OSJobID] {
		return Observation{State: StatePrinted}, nil
	}
	return Observation{State: StateMissing}, nil
}

// listJobIDs parses `lpstat -W <which> -o <printer>` output. Each job line
// starts with "<printer>-<id>".
func listJobIDs(ctx context.Context, printerName, which string) (map[int]bool, error) {
	cmd := exec.CommandContext(ctx, "lpstat", "-W", which, "-o", printerName)
	output, err := cmd.Output()
	if err != nil {
		// lpstat exits 1 when the queue has no jobs
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("lpstat -W %s failed: %w", which, err)
	}

	ids := make(map[int]bool)
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		dash := strings.LastIndex(name, "-")
		if dash < 0 || !strings.EqualFold(name[:dash], printerName) {
			continue
		}
		var id int
		if _, err := fmt.Sscanf(name[dash+1:], "%d", &id); err == nil {
			ids[id] = true
		}
	}
	return ids, nil
}
