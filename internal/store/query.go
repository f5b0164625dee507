package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abelbrown/livelog/internal/cursor"
)

// Range describes one range query against the log.
//
// For cursor.Next it selects rows whose key sorts strictly below From
// (unbounded when !Bounded), newest first, at most Limit rows.
// For cursor.Prev it selects every row whose key sorts strictly above From
// and whose timestamp is <= To. No limit is applied: live catch-up must not
// silently drop rows.
type Range struct {
	Direction cursor.Direction
	From      cursor.Key
	Bounded   bool
	To        int64 // inclusive upper bound in ms, Prev only
	Limit     int   // Next only
}

// ErrBadRange is returned for a Range that cannot be executed.
var ErrBadRange = errors.New("bad range")

func (r Range) validate() error {
	switch r.Direction {
	case cursor.Next:
		if r.Limit <= 0 {
			return fmt.Errorf("%w: next query needs a positive limit", ErrBadRange)
		}
	case cursor.Prev:
		if !r.Bounded {
			return fmt.Errorf("%w: prev query needs a lower bound", ErrBadRange)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrBadRange, r.Direction)
	}
	return nil
}

const selectColumns = `SELECT id, ts, monitor, region, status, status_code, latency_ms, message FROM events`

// Query executes r and returns rows ordered by (ts DESC, id DESC).
// Thread-safe: acquires read lock.
func (s *Store) Query(ctx context.Context, r Range) ([]Row, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
		tail  string
	)
	switch r.Direction {
	case cursor.Next:
		if r.Bounded {
			where = append(where, "(ts < ? OR (ts = ? AND id < ?))")
			args = append(args, r.From.Timestamp, r.From.Timestamp, r.From.ID)
		}
		tail = " LIMIT ?"
	case cursor.Prev:
		where = append(where, "(ts > ? OR (ts = ? AND id > ?))", "ts <= ?")
		args = append(args, r.From.Timestamp, r.From.Timestamp, r.From.ID, r.To)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC" + tail
	if r.Direction == cursor.Next {
		args = append(args, r.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRows(ctx, s.dialect.rebind(query), args...)
}

// queryRows executes a query and scans results into Rows.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.Monitor,
			&r.Region,
			&r.Status,
			&r.StatusCode,
			&r.LatencyMs,
			&r.Message,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
