package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// cleanupGrace is how long a spool file survives after its job finishes.
// Some Windows drivers keep reading the file after the print call returns,
// so removal is deferred rather than immediate.
const cleanupGrace = 15 * time.Second

// SpoolFiles manages the scratch directory holding rendered documents.
type SpoolFiles struct {
	dir    string
	logger Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSpoolFiles creates a manager rooted at dir, or at the default scratch
// directory under the OS temp dir when dir is empty.
func NewSpoolFiles(dir string, logger Logger) *SpoolFiles {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "repairmind-print")
	}
	if logger == nil {
		logger = nullLogger{}
	}
	return &SpoolFiles{
		dir:    dir,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Dir returns the scratch directory path.
func (s *SpoolFiles) Dir() string { return s.dir }

// spoolNameRe strips anything the filesystem could interpret from the
// server-assigned job id; ids are opaque and must not escape the scratch
// directory.
var spoolNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func spoolFileName(jobID, ext string) string {
	name := strings.Trim(spoolNameRe.ReplaceAllString(jobID, "-"), ".-")
	if name == "" {
		name = "job"
	}
	return name + "." + ext
}

// Write persists data as the spool file for jobID and returns its path.
func (s *SpoolFiles) Write(jobID, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating spool directory: %w", err)
	}
	path := filepath.Join(s.dir, spoolFileName(jobID, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	return path, nil
}

// Release schedules removal of a spool file after the grace period. It is
// called for every finished job regardless of print outcome; calling it for
// jobs that never produced a file is harmless.
func (s *SpoolFiles) Release(path string) {
	if path == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.timers[path]; pending {
		return
	}
	s.timers[path] = time.AfterFunc(cleanupGrace, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove spool file", "path", path, "error", err)
		} else {
			s.logger.Debug("removed spool file", "path", path)
		}
	})
}

// Sweep cancels pending timers and removes every remaining spool file.
// Called on shutdown.
func (s *SpoolFiles) Sweep() {
	s.mu.Lock()
	for path, timer := range s.timers {
		timer.Stop()
		delete(s.timers, path)
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read spool directory", "path", s.dir, "error", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove spool file", "path", path, "error", err)
		}
	}
}
