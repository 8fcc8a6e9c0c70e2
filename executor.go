package main

import (
	"context"
	"fmt"
	"time"

	"repairmind/print-agent/protocol"
	"repairmind/print-agent/spool"
)

// monitorSafetyLimit backstops the spooler monitor's own window; a watch
// that never reports terminally is treated as completed, matching the
// monitor's timeout assumption.
const monitorSafetyLimit = 150 * time.Second

// executeJob runs one queue entry end to end: resolve the printer, render,
// submit, then wait for the spooler verdict. A returned error re-enters
// the queue's retry policy.
func (a *Agent) executeJob(ctx context.Context, job *protocol.Job) error {
	desc, ok := a.descriptorFor(job.PrinterSystemName)
	if !ok {
		// One refresh before giving up; the printer may have just been
		// plugged in.
		a.refreshPrinters(ctx)
		if desc, ok = a.descriptorFor(job.PrinterSystemName); !ok {
			return fmt.Errorf("printer not found: %s", job.PrinterSystemName)
		}
	}

	a.sendJobStatus(job.ID, "sent", nil)

	out, err := a.renderer.Render(ctx, job, desc)
	if err != nil {
		a.sendJobStatus(job.ID, "failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	if out.FilePath != "" {
		// The grace period keeps the file around for the driver; release
		// regardless of outcome.
		defer a.renderer.Files().Release(out.FilePath)
	}

	handle, err := spool.Submit(ctx, out, desc, a.logger)
	if err != nil {
		a.sendJobStatus(job.ID, "failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("spooler submission: %w", err)
	}

	a.logger.Debug("job submitted",
		"id", job.ID, "printer", handle.PrinterName, "osJobId", handle.OSJobID)

	return a.awaitOutcome(ctx, job, handle)
}

// awaitOutcome blocks until the spooler monitor reports a terminal state
// or the safety timer fires.
func (a *Agent) awaitOutcome(ctx context.Context, job *protocol.Job, handle spool.Handle) error {
	terminal := make(chan spool.StatusUpdate, 1)
	cancel := a.monitor.Watch(ctx, handle, func(update spool.StatusUpdate) {
		switch update.Status {
		case spool.StatusPrinting:
			if update.HasError {
				a.logger.Warn("printer reports trouble",
					"id", job.ID, "printer", handle.PrinterName, "detail", update.Detail)
			}
			a.sendJobStatus(job.ID, "printing", metaFor(update))
		case spool.StatusCompleted, spool.StatusFailed:
			select {
			case terminal <- update:
			default:
			}
		}
	})
	defer cancel()

	safety := time.NewTimer(monitorSafetyLimit)
	defer safety.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-safety.C:
		a.logger.Warn("monitor safety limit reached, assuming completion",
			"id", job.ID, "printer", handle.PrinterName)
		a.sendJobStatus(job.ID, "completed", nil)
		return nil

	case update := <-terminal:
		if update.Status == spool.StatusFailed {
			a.sendJobStatus(job.ID, "failed", metaFor(update))
			return fmt.Errorf("print failed: %s", update.Detail)
		}
		a.sendJobStatus(job.ID, "completed", metaFor(update))
		a.logger.Info("job printed", "id", job.ID, "printer", handle.PrinterName)
		return nil
	}
}

// sendJobStatus reports progress fire-and-forget; a dead connection only
// logs, the job outcome does not depend on it.
func (a *Agent) sendJobStatus(jobID, status string, meta map[string]interface{}) {
	if err := a.session.UpdateJobStatus(jobID, status, meta); err != nil {
		a.logger.Debug("job status not delivered", "id", jobID, "status", status, "error", err)
	}
}

func metaFor(update spool.StatusUpdate) map[string]interface{} {
	if update.Detail == "" && !update.HasError {
		return nil
	}
	meta := map[string]interface{}{}
	if update.Detail != "" {
		meta["detail"] = update.Detail
	}
	if update.HasError {
		meta["hasError"] = true
	}
	return meta
}
