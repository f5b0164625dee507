package page

import (
	"errors"
	"fmt"

	"github.com/abelbrown/livelog/internal/cursor"
)

// ErrQueryFailed reports that the range query could not be answered. It is
// transient: the same request may succeed later.
var ErrQueryFailed = errors.New("query failed")

// QueryError carries the underlying adapter failure for one fetch.
// errors.Is(err, ErrQueryFailed) holds for every QueryError.
type QueryError struct {
	Direction cursor.Direction
	Cursor    string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s fetch from %s: %v", ErrQueryFailed, e.Direction, e.Cursor, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes QueryError match ErrQueryFailed.
func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }

// IsRetryable reports whether err is worth retrying. Invalid cursors never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, cursor.ErrInvalidCursor) {
		return false
	}
	return errors.Is(err, ErrQueryFailed)
}
