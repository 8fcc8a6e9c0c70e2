package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"repairmind/print-agent/logger"
	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
	"repairmind/print-agent/queue"
	"repairmind/print-agent/render"
	"repairmind/print-agent/session"
	"repairmind/print-agent/spool"
	"repairmind/print-agent/storage"
)

const (
	statusLineInterval  = 60 * time.Second
	printerProbeTimeout = 2 * time.Second
)

// Metrics are the orchestrator's runtime counters.
type Metrics struct {
	StartedAt         time.Time
	Reconnections     int
	JobsReceived      int
	JobsCompleted     int
	JobsFailed        int
	PendingJobsSynced int
}

// SuccessRate is completed / (completed + failed), 1 when nothing ran yet.
func (m *Metrics) SuccessRate() float64 {
	total := m.JobsCompleted + m.JobsFailed
	if total == 0 {
		return 1
	}
	return float64(m.JobsCompleted) / float64(total)
}

// Agent wires the enumerator, queue, renderer, spooler and backend session
// together and owns the process lifecycle.
type Agent struct {
	cfg    *Config
	logger *logger.Logger
	quiet  bool

	store    storage.ConfigStore
	queue    *queue.Queue
	session  *session.Session
	renderer *render.Renderer
	monitor  *spool.Monitor

	mu            sync.RWMutex
	descriptors   map[string]printers.Descriptor
	printerStatus map[string]string
	metrics       Metrics
}

// NewAgent assembles an agent from configuration. The settings store backs
// credential persistence across runs.
func NewAgent(cfg *Config, store storage.ConfigStore, log *logger.Logger, quiet bool) (*Agent, error) {
	cfg.MergeStore(store)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	queuePath := cfg.Printing.QueuePath
	if queuePath == "" {
		var err error
		queuePath, err = storage.QueueFilePath()
		if err != nil {
			return nil, fmt.Errorf("resolving queue path: %w", err)
		}
	}
	q, err := queue.New(queuePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening job queue: %w", err)
	}

	a := &Agent{
		cfg:           cfg,
		logger:        log,
		quiet:         quiet,
		store:         store,
		queue:         q,
		renderer:      render.NewRenderer(cfg.Printing.SpoolDir, log),
		monitor:       spool.NewMonitor(log),
		descriptors:   make(map[string]printers.Descriptor),
		printerStatus: make(map[string]string),
		metrics:       Metrics{StartedAt: time.Now()},
	}

	a.session = session.New(session.Config{
		URL: cfg.WebsocketURL(),
		Credentials: session.Credentials{
			TenantID: cfg.Tenant.TenantID,
			ClientID: cfg.Tenant.ClientID,
			Token:    cfg.Tenant.Token,
			APIKey:   cfg.Tenant.APIKey,
		},
		AgentVersion:       Version,
		HeartbeatInterval:  time.Duration(cfg.Connection.HeartbeatInterval) * time.Second,
		InsecureSkipVerify: cfg.Connection.InsecureSkipVerify,
	}, session.Handlers{
		OnNewJob:    a.handleNewJob,
		OnConnected: a.handleConnected,
		OnReconnecting: func(attempt int, delay time.Duration) {
			log.Info("reconnecting to backend", "attempt", attempt, "delay", delay.String())
		},
		OnReconnectFailed: func(attempt int, err error) {
			log.Warn("reconnect failed", "attempt", attempt, "error", err)
		},
		OnAuthError: func(message string) {
			log.Error("backend rejected credentials, check tenant settings", "message", message)
		},
	}, log)

	q.SetExecutor(a.executeJob)
	return a, nil
}

// Run starts everything and blocks until ctx is cancelled, then shuts
// down gracefully.
func (a *Agent) Run(ctx context.Context) error {
	a.printBanner()

	a.refreshPrinters(ctx)
	a.queue.Start()
	a.session.Start()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.pumpQueueEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		a.statusLoop(ctx)
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	a.session.Stop()
	a.queue.Stop()
	a.renderer.Files().Sweep()
	wg.Wait()

	a.printFinalMetrics()
	return nil
}

// refreshPrinters replaces the descriptor snapshot. An empty result is not
// fatal; printers may appear later.
func (a *Agent) refreshPrinters(ctx context.Context) {
	enum := printers.NewEnumerator(a.logger)
	descs, err := enum.Enumerate(ctx)
	if err != nil {
		a.logger.Warn("printer enumeration failed", "error", err)
		return
	}

	a.mu.Lock()
	a.descriptors = make(map[string]printers.Descriptor, len(descs))
	for _, d := range descs {
		a.descriptors[d.SystemName] = d
	}
	a.mu.Unlock()

	if len(descs) == 0 {
		a.logger.Warn("no printers detected")
		return
	}
	a.logger.Info("printers detected", "count", len(descs))
	if !a.quiet {
		for _, d := range descs {
			fmt.Printf("  %-32s %-10s %-10s %s\n",
				d.SystemName, d.Type, d.Transport, d.Metadata.Status)
		}
	}
}

// descriptorFor resolves a job's target printer, registered or detected.
func (a *Agent) descriptorFor(systemName string) (printers.Descriptor, bool) {
	for _, d := range a.session.RegisteredPrinters() {
		if d.SystemName == systemName {
			return d, true
		}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.descriptors[systemName]
	return d, ok
}

// handleNewJob enqueues a backend-pushed job.
func (a *Agent) handleNewJob(job *protocol.Job) {
	a.mu.Lock()
	a.metrics.JobsReceived++
	a.mu.Unlock()
	a.queue.Enqueue(job, queue.EnqueueOptions{})
}

// handleConnected registers printers and syncs pending jobs after every
// successful (re)connection.
func (a *Agent) handleConnected(reconnected bool) {
	if reconnected {
		a.mu.Lock()
		a.metrics.Reconnections++
		a.mu.Unlock()
	}

	if a.cfg.Connection.AutoRegister && !reconnected {
		// Replay after reconnect is the session's job; only the first
		// connection registers the enumerated set.
		a.mu.RLock()
		descs := make([]printers.Descriptor, 0, len(a.descriptors))
		for _, d := range a.descriptors {
			descs = append(descs, d)
		}
		a.mu.RUnlock()
		for _, d := range descs {
			if err := a.session.RegisterPrinter(d); err != nil {
				a.logger.Warn("printer registration failed", "printer", d.SystemName, "error", err)
			}
		}
	}

	a.syncPendingJobs()
}

// syncPendingJobs pulls every job waiting server-side and enqueues it.
// The queue deduplicates anything already known.
func (a *Agent) syncPendingJobs() {
	jobs, err := a.session.PendingJobs()
	if err != nil {
		a.logger.Warn("pending job sync failed", "error", err)
		return
	}
	accepted := 0
	for _, job := range jobs {
		if a.queue.Enqueue(job, queue.EnqueueOptions{}) {
			accepted++
		}
	}
	a.mu.Lock()
	a.metrics.PendingJobsSynced += accepted
	a.mu.Unlock()
	if len(jobs) > 0 {
		a.logger.Info("pending jobs synced", "received", len(jobs), "accepted", accepted)
	}
}

// pumpQueueEvents mirrors queue outcomes into the metrics.
func (a *Agent) pumpQueueEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue.Events():
			switch ev.Name {
			case queue.EventCompleted:
				a.mu.Lock()
				a.metrics.JobsCompleted++
				a.mu.Unlock()
			case queue.EventFailed:
				a.mu.Lock()
				a.metrics.JobsFailed++
				a.mu.Unlock()
			case queue.EventError:
				a.logger.Warn("queue error", "error", ev.Err)
			}
		}
	}
}

// statusLoop prints the periodic status line and refreshes network
// printer health over SNMP.
func (a *Agent) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusLineInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.probeNetworkPrinters()

		stats := a.queue.Stats()
		a.mu.RLock()
		m := a.metrics
		a.mu.RUnlock()
		line := fmt.Sprintf("state=%s queued=%d processing=%d completed=%d failed=%d uptime=%s",
			a.session.State(), stats.Queued, stats.Processing,
			m.JobsCompleted, m.JobsFailed,
			time.Since(m.StartedAt).Round(time.Second))
		a.logger.Info("status", "summary", line)
		if !a.quiet {
			fmt.Println(line)
		}
	}
}

// probeNetworkPrinters checks network printers over SNMP and reports
// status changes to the backend.
func (a *Agent) probeNetworkPrinters() {
	a.mu.RLock()
	descs := make([]printers.Descriptor, 0, len(a.descriptors))
	for _, d := range a.descriptors {
		if d.Transport == printers.TransportNetwork {
			descs = append(descs, d)
		}
	}
	a.mu.RUnlock()

	for _, d := range descs {
		status, err := printers.ProbeStatus(d, a.cfg.Printing.SNMPCommunity, printerProbeTimeout)
		if err != nil {
			a.logger.Debug("printer probe failed", "printer", d.SystemName, "error", err)
			continue
		}

		a.mu.Lock()
		changed := a.printerStatus[d.SystemName] != status
		a.printerStatus[d.SystemName] = status
		a.mu.Unlock()
		if !changed || !a.session.Connected() {
			continue
		}

		a.logger.Info("printer status changed", "printer", d.SystemName, "status", status)
		if err := a.session.UpdatePrinterStatus(d.SystemName, status, nil); err != nil {
			a.logger.Debug("status update failed", "printer", d.SystemName, "error", err)
		}
	}
}

// EnqueueTestPrint queues a locally generated test receipt on the default
// (or first) detected printer.
func (a *Agent) EnqueueTestPrint() error {
	a.mu.RLock()
	var target *printers.Descriptor
	for _, d := range a.descriptors {
		d := d
		if d.Metadata.IsDefault {
			target = &d
			break
		}
		if target == nil {
			target = &d
		}
	}
	a.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("no printer available for a test print")
	}

	job := &protocol.Job{
		ID:                fmt.Sprintf("test-%d", time.Now().Unix()),
		PrinterSystemName: target.SystemName,
		DocumentType:      protocol.DocReceipt,
		Content: protocol.Content{
			StoreName:    "RepairMind",
			TicketNumber: uuid.NewString()[:8],
			Items:        []protocol.Item{{Quantity: 1, Description: "Test d'impression", Price: 0}},
			Footer:       "Page de test",
		},
	}
	if !a.queue.Enqueue(job, queue.EnqueueOptions{}) {
		return fmt.Errorf("test job rejected by the queue")
	}
	a.logger.Info("test print queued", "printer", target.SystemName, "id", job.ID)
	return nil
}

func (a *Agent) printBanner() {
	a.logger.Info("print agent starting",
		"version", Version, "environment", a.cfg.Environment, "url", a.cfg.WebsocketURL())
	if !a.quiet {
		fmt.Printf("RepairMind print agent %s (%s)\n", Version, a.cfg.Environment)
		fmt.Printf("Backend: %s\n", a.cfg.WebsocketURL())
	}
}

func (a *Agent) printFinalMetrics() {
	stats := a.queue.Stats()
	a.mu.RLock()
	m := a.metrics
	a.mu.RUnlock()

	a.logger.Info("final metrics",
		"completed", m.JobsCompleted, "failed", m.JobsFailed,
		"received", m.JobsReceived, "pendingSynced", m.PendingJobsSynced,
		"reconnections", m.Reconnections,
		"successRate", fmt.Sprintf("%.2f", m.SuccessRate()),
		"uptime", time.Since(m.StartedAt).Round(time.Second).String())
	if !a.quiet {
		fmt.Printf("jobs: %d completed, %d failed, %d still queued; uptime %s\n",
			m.JobsCompleted, m.JobsFailed, stats.Queued,
			time.Since(m.StartedAt).Round(time.Second))
	}
}
