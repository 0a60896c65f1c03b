package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// LockFile is held by the long-running server for the life of the process.
const LockFile = "server.lock"

// ErrLocked is returned when another live process holds the server lock.
var ErrLocked = errors.New("state directory is owned by another driftguard server")

// Lock records which process owns a state directory.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"startedAt"`

	path   string
	logger *logging.Logger
}

// AcquireLock takes the server lock in dir. A lock left by a dead process
// is removed first. mode describes the holder, e.g. "serve" or "http".
func AcquireLock(dir, mode string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	path := filepath.Join(dir, LockFile)

	if existing, err := readLockFile(path); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: %s by PID %d on %s", ErrLocked, existing.Mode, existing.PID, existing.Hostname)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale server lock cleaned", "old_pid", existing.PID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		path:      path,
		logger:    logger,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly against a concurrent starter.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("server lock acquired", "pid", lock.PID, "mode", mode)
	return lock, nil
}

// Release removes the lock file if this process still owns it. Safe to call
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	existing, err := readLockFile(l.path)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.logger.Info("server lock released", "pid", l.PID)
	return nil
}

// Holder returns the live process holding the lock in dir, if any.
func Holder(dir string) (*Lock, bool) {
	lock, err := readLockFile(filepath.Join(dir, LockFile))
	if err != nil || !isProcessAlive(lock.PID) {
		return nil, false
	}
	return lock, true
}

func readLockFile(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

// isProcessAlive sends signal 0, which checks existence without side effects.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
