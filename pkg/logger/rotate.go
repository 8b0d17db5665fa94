package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Defaults for the action audit trail. The trail is append-mostly and
// read rarely, so retention leans long.
const (
	defaultAuditSizeMB  = 64
	defaultAuditBackups = 10
	defaultAuditAgeDays = 90
)

// auditFile is the size-capped writer behind the audit stream. When the
// current file would exceed the cap it is renamed to a timestamped
// sibling (audit.log.20060102-150405) and a fresh file is started.
// Old siblings are pruned by count and by age.
type auditFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	file    *os.File
	written int64
}

func openAuditFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*auditFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit file path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultAuditSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultAuditBackups
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultAuditAgeDays
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &auditFile{
		path:   path,
		limit:  int64(maxSizeMB) * 1024 * 1024,
		keep:   maxBackups,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (a *auditFile) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		if err := a.open(); err != nil {
			return 0, err
		}
	}
	if a.written > 0 && a.written+int64(len(p)) > a.limit {
		if err := a.rollOver(); err != nil {
			return 0, err
		}
	}
	n, err := a.file.Write(p)
	a.written += int64(n)
	return n, err
}

func (a *auditFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.written = 0
	return err
}

func (a *auditFile) open() error {
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit file: %w", err)
	}
	a.file = file
	a.written = info.Size()
	return nil
}

func (a *auditFile) rollOver() error {
	_ = a.file.Close()
	a.file = nil
	a.written = 0

	backup := fmt.Sprintf("%s.%s", a.path, time.Now().Format("20060102-150405.000000000"))
	if err := os.Rename(a.path, backup); err != nil {
		return fmt.Errorf("rotate audit file: %w", err)
	}
	a.prune()
	return a.open()
}

// prune removes timestamped siblings beyond the retention count and any
// older than the retention age. Pruning is best-effort housekeeping,
// failures are ignored.
func (a *auditFile) prune() {
	siblings, err := filepath.Glob(a.path + ".*")
	if err != nil || len(siblings) == 0 {
		return
	}
	// Timestamp suffixes sort lexically, newest last.
	sort.Strings(siblings)

	if excess := len(siblings) - a.keep; excess > 0 {
		for _, path := range siblings[:excess] {
			_ = os.Remove(path)
		}
		siblings = siblings[excess:]
	}

	cutoff := time.Now().Add(-a.maxAge)
	for _, path := range siblings {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
