package store

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls how appends back off on transient SQLite errors.
// busy_timeout covers most lock waits; WAL readers can still surface
// SQLITE_BUSY/LOCKED or a short read under write bursts.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  25 * time.Millisecond,
	maxDelay:   400 * time.Millisecond,
}

// transientSQLiteMarkers are substrings modernc.org/sqlite puts in errors
// that go away on retry.
var transientSQLiteMarkers = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range transientSQLiteMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// retryOp runs fn until it succeeds, fails permanently, runs out of attempts
// or ctx is done.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoffDelay(cfg, attempt)):
		}
	}
	return lastErr
}

// backoffDelay is baseDelay * 2^attempt capped at maxDelay, plus up to
// baseDelay of jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
