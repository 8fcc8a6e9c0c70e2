// Package queue is the durable job queue between the backend session and
// the print pipeline: idempotent enqueue, per-printer serialization,
// bounded retries, TTL expiration and crash-safe persistence.
package queue

import (
	"time"

	"repairmind/print-agent/protocol"
)

// Status of a queue entry.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Entry wraps a job with its queue lifecycle state. PrinterSystemName and
// Priority mirror the job so sorting and recovery never dereference it.
type Entry struct {
	ID                string            `json:"id"`
	Job               *protocol.Job     `json:"job"`
	Status            Status            `json:"status"`
	Priority          protocol.Priority `json:"priority"`
	PrinterSystemName string            `json:"printerSystemName"`
	Retries           int               `json:"retries"`
	MaxRetries        int               `json:"maxRetries"`
	NextRetryAt       time.Time         `json:"nextRetryAt"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	Error             string            `json:"error,omitempty"`
}

// clone returns a copy safe to hand outside the queue lock.
func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// EventName identifies a queue lifecycle event.
type EventName string

const (
	EventQueued       EventName = "job-queued"
	EventProcessing   EventName = "job-processing"
	EventCompleted    EventName = "job-completed"
	EventFailed       EventName = "job-failed"
	EventRetrying     EventName = "job-retrying"
	EventExpired      EventName = "job-expired"
	EventCancelled    EventName = "job-cancelled"
	EventDeduplicated EventName = "job-deduplicated"
	EventError        EventName = "error"
)

// Event is delivered on the queue's event channel. Entry is a snapshot.
type Event struct {
	Name  EventName
	Entry *Entry
	Err   string
}

// Metrics are aggregate counters persisted alongside the entries.
type Metrics struct {
	JobsReceived     int `json:"jobsReceived"`
	JobsCompleted    int `json:"jobsCompleted"`
	JobsFailed       int `json:"jobsFailed"`
	JobsExpired      int `json:"jobsExpired"`
	JobsCancelled    int `json:"jobsCancelled"`
	JobsDeduplicated int `json:"jobsDeduplicated"`
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Queued         int      `json:"queued"`
	Processing     int      `json:"processing"`
	Completed      int      `json:"completed"`
	Failed         int      `json:"failed"`
	Expired        int      `json:"expired"`
	Cancelled      int      `json:"cancelled"`
	ActivePrinters []string `json:"activePrinters"`
	Metrics        Metrics  `json:"metrics"`
}
