package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"repairmind/print-agent/protocol"
)

const (
	defaultMaxRetries  = 3
	defaultTTL         = 24 * time.Hour
	schedulerInterval  = 5 * time.Second
	expirationInterval = 60 * time.Second
	// Terminal entries kept for the history view before trimming.
	historyLimit = 100

	errTTLExceeded = "TTL exceeded"
)

// retryDelays index is retries-1, clamped to the last element.
var retryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}

// Executor processes one job. A nil error completes the entry; any error
// triggers the retry policy.
type Executor func(ctx context.Context, job *protocol.Job) error

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

// EnqueueOptions tune one enqueue call.
type EnqueueOptions struct {
	// Priority overrides the job's own priority when non-empty.
	Priority protocol.Priority
	// TTL overrides the default expiration window when positive.
	TTL time.Duration
}

// Queue owns all entry state. Every public entry point takes the single
// lock; the executor runs outside it.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	busy     map[string]bool
	executor Executor
	metrics  Metrics

	store  *Store
	logger Logger
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	maxRetries int
	ttl        time.Duration

	// test hooks
	now           func() time.Time
	schedulerTick time.Duration
	expireTick    time.Duration
}

// New creates a queue persisting to path and restores any saved state.
func New(path string, logger Logger) (*Queue, error) {
	if logger == nil {
		logger = nullLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		entries:       make(map[string]*Entry),
		busy:          make(map[string]bool),
		store:         NewStore(path, logger),
		logger:        logger,
		events:        make(chan Event, 64),
		ctx:           ctx,
		cancel:        cancel,
		maxRetries:    defaultMaxRetries,
		ttl:           defaultTTL,
		now:           time.Now,
		schedulerTick: schedulerInterval,
		expireTick:    expirationInterval,
	}

	entries, metrics, err := q.store.Load(q.now())
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		q.entries[e.ID] = e
	}
	q.metrics = metrics
	if len(entries) > 0 {
		logger.Info("restored job queue", "entries", len(entries))
	}
	return q, nil
}

// Events exposes the lifecycle event stream. Events are dropped when the
// consumer lags; the queue never blocks on it.
func (q *Queue) Events() <-chan Event { return q.events }

// SetExecutor registers the job processor. Must be called before Start.
func (q *Queue) SetExecutor(fn Executor) {
	q.mu.Lock()
	q.executor = fn
	q.mu.Unlock()
}

// Start launches the scheduler and expiration tickers and immediately
// schedules any restored work.
func (q *Queue) Start() {
	q.wg.Add(2)
	go q.tickLoop(q.schedulerTick, q.schedule)
	go q.tickLoop(q.expireTick, q.expireDue)
	q.schedule()
}

// Stop halts scheduling, waits for in-flight executors and flushes
// pending state to disk. Cancelling under the lock pairs with the
// check-then-Add in schedule, so Wait cannot miss a run goroutine.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.store.Flush()
}

func (q *Queue) tickLoop(interval time.Duration, fn func()) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Enqueue validates and accepts a job. Returns false when the job is
// invalid or an entry with the same id is already queued or processing.
func (q *Queue) Enqueue(job *protocol.Job, opts EnqueueOptions) bool {
	if err := job.Validate(); err != nil {
		q.logger.Warn("rejected invalid job", "error", err)
		q.emit(Event{Name: EventError, Err: err.Error()})
		return false
	}

	priority := job.EffectivePriority()
	if opts.Priority != "" {
		priority = opts.Priority.Normalize()
	}
	ttl := q.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	q.mu.Lock()
	if existing, ok := q.entries[job.ID]; ok && !existing.Status.Terminal() {
		q.metrics.JobsDeduplicated++
		snapshot := existing.clone()
		q.mu.Unlock()
		q.logger.Debug("deduplicated job", "id", job.ID, "status", snapshot.Status)
		q.emit(Event{Name: EventDeduplicated, Entry: snapshot})
		return false
	}

	now := q.now()
	entry := &Entry{
		ID:                job.ID,
		Job:               job,
		Status:            StatusQueued,
		Priority:          priority,
		PrinterSystemName: job.PrinterSystemName,
		MaxRetries:        q.maxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
	// A terminal entry with the same id is replaced outright.
	q.entries[job.ID] = entry
	q.metrics.JobsReceived++
	q.trimHistoryLocked()
	snapshot := entry.clone()
	q.mu.Unlock()

	q.logger.Info("job queued",
		"id", job.ID, "printer", job.PrinterSystemName,
		"type", string(job.DocumentType), "priority", string(priority))
	q.emit(Event{Name: EventQueued, Entry: snapshot})
	q.persist()
	q.schedule()
	return true
}

// CancelJob transitions a queued entry to cancelled. Processing and
// terminal entries are refused.
func (q *Queue) CancelJob(id string) bool {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || entry.Status != StatusQueued {
		q.mu.Unlock()
		return false
	}
	entry.Status = StatusCancelled
	entry.UpdatedAt = q.now()
	q.metrics.JobsCancelled++
	snapshot := entry.clone()
	q.mu.Unlock()

	q.logger.Info("job cancelled", "id", id)
	q.emit(Event{Name: EventCancelled, Entry: snapshot})
	q.persist()
	return true
}

// Stats returns a point-in-time view.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Metrics: q.metrics}
	for _, e := range q.entries {
		switch e.Status {
		case StatusQueued:
			s.Queued++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusExpired:
			s.Expired++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	for printer := range q.busy {
		s.ActivePrinters = append(s.ActivePrinters, printer)
	}
	sort.Strings(s.ActivePrinters)
	return s
}

// RecentJobs returns up to limit entry snapshots, newest by UpdatedAt.
func (q *Queue) RecentJobs(limit int) []*Entry {
	q.mu.Lock()
	all := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		all = append(all, e.clone())
	}
	q.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// schedule runs one scheduling pass: pick runnable queued entries whose
// printer is idle, mark them processing, spawn executors. The busy set is
// claimed under the lock, so overlapping passes cannot double-start an
// entry.
func (q *Queue) schedule() {
	q.mu.Lock()
	if q.executor == nil || q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}

	now := q.now()
	candidates := make([]*Entry, 0)
	for _, e := range q.entries {
		if e.Status == StatusQueued && !e.NextRetryAt.After(now) && !q.busy[e.PrinterSystemName] {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Priority.Ordinal(), candidates[j].Priority.Ordinal()
		if pi != pj {
			return pi < pj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	started := make([]*Entry, 0, len(candidates))
	for _, e := range candidates {
		if q.busy[e.PrinterSystemName] {
			continue
		}
		q.busy[e.PrinterSystemName] = true
		e.Status = StatusProcessing
		e.UpdatedAt = now
		started = append(started, e)
	}
	snapshots := make([]*Entry, len(started))
	for i, e := range started {
		snapshots[i] = e.clone()
	}
	// Registered with the WaitGroup before the lock is released; Stop
	// cancels under the same lock.
	q.wg.Add(len(started))
	q.mu.Unlock()

	for i, e := range started {
		q.emit(Event{Name: EventProcessing, Entry: snapshots[i]})
		go q.run(e.ID)
	}
	if len(started) > 0 {
		q.persist()
	}
}

// run executes one processing entry and applies the retry policy.
func (q *Queue) run(id string) {
	defer q.wg.Done()

	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || entry.Status != StatusProcessing {
		q.mu.Unlock()
		return
	}
	job := entry.Job
	printer := entry.PrinterSystemName
	q.mu.Unlock()

	execErr := q.executor(q.ctx, job)

	q.mu.Lock()
	entry, ok = q.entries[id]
	if !ok {
		delete(q.busy, printer)
		q.mu.Unlock()
		return
	}
	now := q.now()
	entry.UpdatedAt = now

	var event Event
	if execErr == nil {
		entry.Status = StatusCompleted
		entry.Error = ""
		q.metrics.JobsCompleted++
		event = Event{Name: EventCompleted, Entry: entry.clone()}
	} else {
		entry.Error = execErr.Error()
		if entry.Retries < entry.MaxRetries {
			entry.Retries++
			delay := retryDelay(entry.Retries)
			entry.NextRetryAt = now.Add(delay)
			entry.Status = StatusQueued
			event = Event{Name: EventRetrying, Entry: entry.clone()}
			q.logger.Warn("job failed, scheduling retry",
				"id", id, "attempt", entry.Retries, "delay", delay.String(), "error", execErr)
		} else {
			entry.Status = StatusFailed
			q.metrics.JobsFailed++
			event = Event{Name: EventFailed, Entry: entry.clone()}
			q.logger.Error("job failed permanently",
				"id", id, "retries", entry.Retries, "error", execErr)
		}
	}
	delete(q.busy, printer)
	q.trimHistoryLocked()
	q.mu.Unlock()

	q.emit(event)
	q.persist()
	q.schedule()
}

func retryDelay(retries int) time.Duration {
	idx := retries - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryDelays) {
		idx = len(retryDelays) - 1
	}
	return retryDelays[idx]
}

// expireDue transitions queued entries past their TTL.
func (q *Queue) expireDue() {
	now := q.now()

	q.mu.Lock()
	expired := make([]*Entry, 0)
	for _, e := range q.entries {
		if e.Status == StatusQueued && e.ExpiresAt.Before(now) {
			e.Status = StatusExpired
			e.Error = errTTLExceeded
			e.UpdatedAt = now
			q.metrics.JobsExpired++
			expired = append(expired, e.clone())
		}
	}
	q.mu.Unlock()

	for _, snapshot := range expired {
		q.logger.Warn("job expired", "id", snapshot.ID)
		q.emit(Event{Name: EventExpired, Entry: snapshot})
	}
	if len(expired) > 0 {
		q.persist()
	}
}

// trimHistoryLocked deletes the oldest terminal entries beyond the
// history limit. Caller holds the lock.
func (q *Queue) trimHistoryLocked() {
	terminal := make([]*Entry, 0)
	for _, e := range q.entries {
		if e.Status.Terminal() {
			terminal = append(terminal, e)
		}
	}
	if len(terminal) <= historyLimit {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})
	for _, e := range terminal[:len(terminal)-historyLimit] {
		delete(q.entries, e.ID)
	}
}

// emit delivers an event without blocking; a lagging consumer loses
// events rather than stalling the queue.
func (q *Queue) emit(ev Event) {
	select {
	case q.events <- ev:
	default:
		q.logger.Debug("event channel full, dropping event", "event", string(ev.Name))
	}
}

// persist schedules a debounced save of the current state.
func (q *Queue) persist() {
	q.store.SaveSoon(func() ([]*Entry, Metrics) {
		q.mu.Lock()
		defer q.mu.Unlock()
		entries := make([]*Entry, 0, len(q.entries))
		for _, e := range q.entries {
			entries = append(entries, e.clone())
		}
		return entries, q.metrics
	})
}
