// Package cursor provides the opaque position markers used to page through
// the event log in both directions.
//
// A Cursor is a tagged value: it carries the direction it was produced for, so
// a cursor returned for "load more" can never be replayed as a live cursor.
// Positions are composite keys (timestamp, id) so rows that share a
// millisecond are never dropped or repeated at a page boundary.
package cursor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when a cursor is malformed or used with the
// wrong direction. It is a caller bug and must not be retried.
var ErrInvalidCursor = errors.New("invalid cursor")

// Direction selects which end of the dataset a fetch extends.
type Direction string

const (
	// Next pages backward through history ("load more").
	Next Direction = "next"
	// Prev pages forward to rows newer than the head ("live mode").
	Prev Direction = "prev"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Next || d == Prev
}

// ParseDirection parses the wire form of a direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: direction must be %q or %q, got %q", ErrInvalidCursor, Next, Prev, s)
	}
	return d, nil
}

// Key is the composite ordering key of a row: timestamp (ms since epoch) with
// the row id as tie-break. The empty ID sorts before every real ID.
type Key struct {
	Timestamp int64
	ID        string
}

// Compare returns -1, 0 or +1 depending on whether k sorts before, equal to or
// after o.
func (k Key) Compare(o Key) int {
	switch {
	case k.Timestamp < o.Timestamp:
		return -1
	case k.Timestamp > o.Timestamp:
		return 1
	}
	return strings.Compare(k.ID, o.ID)
}

// Less reports whether k sorts strictly before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.Timestamp, k.ID)
}

// Cursor is a position plus the direction it resumes. The zero value is not a
// usable cursor; build one with Start, Seed, At or End.
type Cursor struct {
	dir  Direction
	key  Key
	null bool
}

// Start returns the null "next" cursor that begins a session at the present.
func Start() Cursor {
	return Cursor{dir: Next, null: true}
}

// Seed returns the cursor a session uses to begin paging in direction d from
// wall-clock time t. For Next it excludes rows at exactly t; for Prev it
// includes them, so the two directions meet without overlap.
func Seed(d Direction, t time.Time) Cursor {
	return Cursor{dir: d, key: Key{Timestamp: t.UnixMilli()}}
}

// At returns a cursor positioned at k.
func At(d Direction, k Key) Cursor {
	return Cursor{dir: d, key: k}
}

// End returns the null cursor for d: no further data in that direction.
func End(d Direction) Cursor {
	return Cursor{dir: d, null: true}
}

// Direction returns the direction this cursor resumes.
func (c Cursor) Direction() Direction { return c.dir }

// Key returns the position. Meaningless when IsNull.
func (c Cursor) Key() Key { return c.key }

// IsNull reports whether the cursor carries no position.
func (c Cursor) IsNull() bool { return c.null }

// Value returns the timestamp as a pointer for wire encoding, nil when null.
func (c Cursor) Value() *int64 {
	if c.null {
		return nil
	}
	v := c.key.Timestamp
	return &v
}

// Validate checks the cursor can be used for a fetch. A null cursor is only
// meaningful for Next (start from the present).
func (c Cursor) Validate() error {
	if !c.dir.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidCursor, c.dir)
	}
	if c.null {
		if c.dir == Prev {
			return fmt.Errorf("%w: live cursor requires a value", ErrInvalidCursor)
		}
		return nil
	}
	if c.key.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp %d", ErrInvalidCursor, c.key.Timestamp)
	}
	return nil
}

// Expect returns ErrInvalidCursor unless c was produced for direction d.
func (c Cursor) Expect(d Direction) error {
	if c.dir != d {
		return fmt.Errorf("%w: %s cursor used for %s fetch", ErrInvalidCursor, c.dir, d)
	}
	return nil
}

func (c Cursor) String() string {
	if c.null {
		return string(c.dir) + ":null"
	}
	return string(c.dir) + ":" + c.key.String()
}

// Parse builds a cursor from request parameters. value and id may be empty;
// an absent value is only accepted for Next.
func Parse(direction, value, id string) (Cursor, error) {
	d, err := ParseDirection(direction)
	if err != nil {
		return Cursor{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		if id != "" {
			return Cursor{}, fmt.Errorf("%w: cursor id given without cursor", ErrInvalidCursor)
		}
		c := End(d)
		return c, c.Validate()
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q is not a millisecond timestamp", ErrInvalidCursor, value)
	}
	c := At(d, Key{Timestamp: ts, ID: id})
	return c, c.Validate()
}

// FromWire rebuilds a cursor from an envelope field pair.
func FromWire(d Direction, value *int64, id string) Cursor {
	if value == nil {
		return End(d)
	}
	return At(d, Key{Timestamp: *value, ID: id})
}
