// Package runlock keeps two rebalance runs from touching the same capital
// pool at once.
package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/pkg/retrier"
)

const (
	// FileName lock file created inside the run log directory.
	FileName = "rebalance.lock"
	// DefaultStaleAfter age after which a lock left by a crashed run is broken.
	DefaultStaleAfter = time.Hour
)

// ErrLocked another run holds the lock.
var ErrLocked = errors.New("another rebalance run holds the lock")

// Lock an acquired run lock.
type Lock struct {
	path string
}

// Options lock acquisition parameters.
type Options struct {
	// Wait how long to keep retrying while another run holds the lock.
	Wait       time.Duration
	StaleAfter time.Duration
	Logger     *zap.Logger
}

// Acquire creates the lock file in dir, retrying with backoff for up to
// opts.Wait. A lock older than opts.StaleAfter is removed and taken over.
func Acquire(ctx context.Context, dir string, opts Options) (*Lock, error) {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create lock dir")
	}

	path := filepath.Join(dir, FileName)
	r := retrier.New(
		retrier.WithMaxRetries(-1),
		retrier.WithMaxElapsed(opts.Wait),
		retrier.WithRetryIf(func(err error) bool { return errors.Is(err, ErrLocked) }),
	)
	if opts.Wait <= 0 {
		r = retrier.New(retrier.WithMaxRetries(0))
	}

	err := r.Do(ctx, func(context.Context) error {
		return tryCreate(path, opts.StaleAfter, opts.Logger)
	})
	if err != nil {
		return nil, err
	}

	return &Lock{path: path}, nil
}

func tryCreate(path string, staleAfter time.Duration, logger *zap.Logger) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer f.Close()
		_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
		return errors.Wrap(werr, "write lock file")
	}
	if !os.IsExist(err) {
		return errors.Wrap(err, "create lock file")
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// released between open and stat
			return ErrLocked
		}
		return errors.Wrap(statErr, "stat lock file")
	}

	age := time.Since(info.ModTime())
	if age <= staleAfter {
		return errors.Wrapf(ErrLocked, "held by %s", holder(path))
	}

	logger.Warn("breaking stale run lock",
		zap.String("path", path),
		zap.Duration("age", age))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove stale lock")
	}

	return tryCreate(path, staleAfter, logger)
}

// holder best-effort description of the lock owner.
func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown process"
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if pid, err := strconv.Atoi(lines[0]); err == nil {
		return "pid " + strconv.Itoa(pid)
	}
	return "unknown process"
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "release run lock")
	}
	return nil
}
