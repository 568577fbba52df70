package hio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// jitterRNG is the random source used for reservation/lock retry jitter.
var jitterRNG = rand.New(rand.NewSource(time.Now().UnixNano()))

// SetJitterRNG overrides the RNG used for sleep jitter. Useful for deterministic tests.
func SetJitterRNG(r *rand.Rand) {
	if r != nil {
		jitterRNG = r
	}
}

// TimedOut returns an error if the context is done or the elapsed time since
// startTime exceeds maxTime.
func TimedOut(ctx context.Context, name string, startTime time.Time, maxTime time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if time.Since(startTime) > maxTime {
		return fmt.Errorf("%s timed out (maxTime=%v)", name, maxTime)
	}
	return nil
}

// RandomSleepWithUnit sleeps a random multiple (1..4) of unit, to stagger
// retrying ranks off of each other during reservation/open contention.
func RandomSleepWithUnit(ctx context.Context, unit time.Duration) {
	n := time.Duration(jitterRNG.Intn(5))
	if n == 0 {
		n = 1
	}
	Sleep(ctx, n*unit)
}

// RandomSleep sleeps a random duration between 20ms and 80ms.
func RandomSleep(ctx context.Context) {
	RandomSleepWithUnit(ctx, 20*time.Millisecond)
}

// Sleep blocks for sleepTime or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, sleepTime time.Duration) {
	if sleepTime <= 0 {
		return
	}
	t, cancel := context.WithTimeout(ctx, sleepTime)
	defer cancel()
	<-t.Done()
}

// Retry runs task, retrying retryable errors with Fibonacci backoff up to 5
// times after the first attempt (6 attempts in all). Whenever Retry ends
// with an error, gaveUpTask (when non-nil) runs before that error is returned.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Second)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether err looks transient rather than a permanent
// filesystem condition. Permanent conditions are not retried; classifyErrno
// maps them into their own error kinds (NotFound, Perm, OutOfResource,
// BadParam, or IOPermanent for a failover-qualified error).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}
	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTEMPTY),
		errors.Is(err, syscall.EMLINK),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EEXIST),
		errors.Is(err, syscall.EINVAL):
		return false
	}
	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}
	return true
}

// IsFailoverQualifiedIOError reports whether err indicates the data root's
// filesystem is unhealthy enough that the root selector should stop
// preferring it for future dataset opens (EIO, ENODEV, ENOSPC, a remounted-readonly FS,
// ...). There is no passive root to fail over *to*, so this only feeds
// the root selector's degraded-module bookkeeping.
func IsFailoverQualifiedIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	always := []syscall.Errno{
		syscall.EIO,
		syscall.ENODEV,
		syscall.ENXIO,
		syscall.EROFS,
		syscall.ENOSPC,
		syscall.EDQUOT,
	}
	for _, code := range always {
		if errors.Is(err, code) {
			return true
		}
	}
	if strings.Contains(err.Error(), "read-only file system") ||
		strings.Contains(err.Error(), "readonly file system") {
		return true
	}
	return false
}
