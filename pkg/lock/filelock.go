// Package lock provides file-based locking so two runs never write into the
// same working directory at once.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Lock timing defaults
const (
	DefaultTimeout      = 5 * time.Minute // Maximum time to wait for lock
	DefaultPollInterval = 5 * time.Second // How often to check if lock is available
	maxIdentifierLen    = 100             // Maximum length for lock identifier
)

// ErrTimeout is returned when the lock stays held past the wait limit.
var ErrTimeout = errors.New("timed out waiting for lock")

// sanitizeIdentifier cleans the identifier for safe use in file
func sanitizeIdentifier(id string) string {
	if id == "" {
		return "unknown"
	}
	// Remove path separators and control characters
	result := strings.Map(func(r rune) rune {
		if r < 32 || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, id)
	if len(result) > maxIdentifierLen {
		result = result[:maxIdentifierLen]
	}
	return result
}

// Options tunes waiting. Zero values use the defaults; OnWait is called
// on every poll while another run holds the lock.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	OnWait       func(holder string, waited time.Duration)
}

// FileLock represents a held lock on one working directory
type FileLock struct {
	file     *os.File
	path     string
	infoPath string
}

// PathFor returns the lock file guarding target inside dir. The name is a
// digest of the absolute target path.
func PathFor(dir, target string) string {
	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}
	sum := sha256.Sum256([]byte(target))
	return filepath.Join(dir, hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes the lock for target, waiting while another process holds
// it. identifier is recorded so waiters can tell who holds the lock.
func Acquire(ctx context.Context, dir, target, identifier string, opts Options) (*FileLock, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	// Create lock directory with secure permissions (owner only)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("could not create lock directory %s: %w", dir, err)
	}

	lockPath := PathFor(dir, target)
	infoPath := lockPath + ".info"

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not open lock file %s: %w", lockPath, err)
	}

	startWait := time.Now()
	for {
		err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			lockFile.Close()
			return nil, fmt.Errorf("could not lock %s: %w", lockPath, err)
		}
		if time.Since(startWait) > opts.Timeout {
			lockFile.Close()
			return nil, fmt.Errorf("%w after %v", ErrTimeout, opts.Timeout)
		}

		holder := "unknown"
		if data, err := os.ReadFile(infoPath); err == nil {
			holder = strings.TrimSpace(string(data))
		}
		if opts.OnWait != nil {
			opts.OnWait(holder, time.Since(startWait))
		}

		timer := time.NewTimer(opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			lockFile.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	// Write our info so others know who has the lock
	_ = os.WriteFile(infoPath, []byte(sanitizeIdentifier(identifier)), 0600)

	return &FileLock{file: lockFile, path: lockPath, infoPath: infoPath}, nil
}

// Release releases the file lock
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = os.Remove(l.infoPath)
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock: %w", unlockErr)
	}
	return closeErr
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}
