package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// InstanceLock serializes mutating runs of the tool on one host. It is a
// kernel flock on a well-known file: when the holding process dies the
// lock is released automatically, so a crashed holder never needs a
// manual stale-lock sweep. The holder's PID is recorded in the file for
// the contention message only; the flock is the exclusion mechanism.
type InstanceLock struct {
	path string
	fl   *flock.Flock
}

// ContentionError reports that another instance holds the lock.
type ContentionError struct {
	Path        string
	HolderPID   int
	HolderAlive bool
}

func (e *ContentionError) Error() string {
	if e.HolderPID > 0 {
		state := "not running"
		if e.HolderAlive {
			state = "running"
		}
		return fmt.Sprintf("another instance holds the lock %s (pid %d, %s)", e.Path, e.HolderPID, state)
	}
	return fmt.Sprintf("another instance holds the lock %s", e.Path)
}

func IsContention(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce)
}

// Acquire takes the instance lock without waiting. On contention it
// returns a *ContentionError naming the recorded holder.
func Acquire(path string) (*InstanceLock, error) {
	return acquire(nil, path)
}

// AcquireWait keeps retrying until the lock is acquired or ctx expires.
func AcquireWait(ctx context.Context, path string) (*InstanceLock, error) {
	return acquire(ctx, path)
}

func acquire(ctx context.Context, path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)

	var locked bool
	var err error
	if ctx != nil {
		locked, err = fl.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, holderError(path)
	}

	l := &InstanceLock{path: path, fl: fl}
	l.recordHolder()
	return l, nil
}

// Release drops the lock. The lock file stays behind; removing it would
// race with a concurrent acquirer on the same inode.
func (l *InstanceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

func (l *InstanceLock) Path() string { return l.path }

// recordHolder is best-effort: a failed write leaves the contention
// message without a PID but changes nothing about exclusion.
func (l *InstanceLock) recordHolder() {
	_ = os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func holderError(path string) error {
	cerr := &ContentionError{Path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		return cerr
	}
	line, _, _ := strings.Cut(string(b), "\n")
	if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
		cerr.HolderPID = pid
		cerr.HolderAlive = pidAlive(pid)
	}
	return cerr
}
