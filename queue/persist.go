package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"repairmind/print-agent/protocol"
)

// saveDebounce coalesces bursts of mutations into one disk write.
const saveDebounce = 200 * time.Millisecond

// persistedState is the on-disk queue file layout.
type persistedState struct {
	Jobs    []*Entry  `json:"jobs"`
	Metrics Metrics   `json:"metrics"`
	SavedAt time.Time `json:"savedAt"`
}

// Store persists queue state as a JSON file with atomic tmp-rename writes.
type Store struct {
	path   string
	logger Logger

	mu       sync.Mutex
	timer    *time.Timer
	snapshot func() ([]*Entry, Metrics)
}

// NewStore creates a store writing to path.
func NewStore(path string, logger Logger) *Store {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Store{path: path, logger: logger}
}

// SaveSoon schedules a debounced write. snapshot is captured at write time
// so the last scheduled state wins.
func (s *Store) SaveSoon(snapshot func() ([]*Entry, Metrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(saveDebounce, func() {
		s.mu.Lock()
		s.timer = nil
		snap := s.snapshot
		s.mu.Unlock()
		if snap != nil {
			s.write(snap)
		}
	})
}

// Flush writes any pending state immediately.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	snap := s.snapshot
	s.mu.Unlock()
	if snap != nil {
		s.write(snap)
	}
}

// write serializes to <path>.tmp, syncs, then renames over <path>.
func (s *Store) write(snapshot func() ([]*Entry, Metrics)) {
	entries, metrics := snapshot()
	state := persistedState{Jobs: entries, Metrics: metrics, SavedAt: time.Now()}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Error("failed to serialize queue state", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error("failed to create queue directory", "error", err)
		return
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.logger.Error("failed to open queue temp file", "path", tmp, "error", err)
		return
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.logger.Error("failed to write queue state", "path", tmp, "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		s.logger.Warn("failed to sync queue state", "path", tmp, "error", err)
	}
	if err := f.Close(); err != nil {
		s.logger.Error("failed to close queue temp file", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("failed to replace queue file", "path", s.path, "error", err)
		return
	}
	s.logger.Debug("queue state saved", "entries", len(entries))
}

// Load reads the queue file, falling back to the .tmp leftover of an
// interrupted write, and repairs entries for a fresh run: processing
// entries are demoted to queued, stale entries are expired in place and
// missing fields are back-filled.
func (s *Store) Load(now time.Time) ([]*Entry, Metrics, error) {
	state, err := s.read(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("queue file unreadable, trying temp file", "error", err)
		}
		state, err = s.read(s.path + ".tmp")
		if err != nil {
			if os.IsNotExist(err) {
				return nil, Metrics{}, nil
			}
			return nil, Metrics{}, fmt.Errorf("loading queue state: %w", err)
		}
	}

	entries := make([]*Entry, 0, len(state.Jobs))
	for _, e := range state.Jobs {
		if e == nil || e.ID == "" {
			continue
		}
		repairEntry(e, now)
		entries = append(entries, e)
	}
	return entries, state.Metrics, nil
}

func (s *Store) read(path string) (*persistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &state, nil
}

// repairEntry normalizes one restored entry.
func repairEntry(e *Entry, now time.Time) {
	// Crash recovery: the executor did not survive the restart.
	if e.Status == StatusProcessing {
		e.Status = StatusQueued
		e.UpdatedAt = now
	}
	if e.PrinterSystemName == "" && e.Job != nil {
		e.PrinterSystemName = e.Job.PrinterSystemName
	}
	if e.Priority == "" {
		if e.Job != nil {
			e.Priority = e.Job.EffectivePriority()
		} else {
			e.Priority = protocol.PriorityNormal
		}
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = defaultMaxRetries
	}
	if e.ExpiresAt.IsZero() {
		base := e.CreatedAt
		if base.IsZero() {
			base = now
		}
		e.ExpiresAt = base.Add(defaultTTL)
	}
	if e.Status == StatusQueued && e.ExpiresAt.Before(now) {
		e.Status = StatusExpired
		e.Error = errTTLExceeded
		e.UpdatedAt = now
	}
}
