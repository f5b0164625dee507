package cursor

import (
	"errors"
	"testing"
	"time"
)

func TestKeyCompare(t *testing.T) {
	tests := []struct {
		a, b Key
		want int
	}{
		{Key{100, "a"}, Key{100, "a"}, 0},
		{Key{99, "z"}, Key{100, "a"}, -1},
		{Key{100, "b"}, Key{100, "a"}, 1},
		{Key{100, ""}, Key{100, "a"}, -1},
		{Key{101, ""}, Key{100, "zzz"}, 1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.a.Less(tt.b); got != (tt.want < 0) {
			t.Errorf("%v.Less(%v) = %v", tt.a, tt.b, got)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		value    string
		id       string
		wantErr  bool
		wantNull bool
		wantKey  Key
		wantDir  Direction
	}{
		{name: "initial next", dir: "next", wantNull: true, wantDir: Next},
		{name: "next with value", dir: "next", value: "1700000000000", wantKey: Key{Timestamp: 1700000000000}, wantDir: Next},
		{name: "prev with id", dir: "prev", value: "100", id: "abc", wantKey: Key{100, "abc"}, wantDir: Prev},
		{name: "case insensitive", dir: " NEXT ", value: "5", wantKey: Key{Timestamp: 5}, wantDir: Next},
		{name: "prev without value", dir: "prev", wantErr: true},
		{name: "missing direction", dir: "", value: "5", wantErr: true},
		{name: "bad direction", dir: "sideways", value: "5", wantErr: true},
		{name: "not a number", dir: "next", value: "yesterday", wantErr: true},
		{name: "negative", dir: "next", value: "-1", wantErr: true},
		{name: "id without value", dir: "next", id: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.dir, tt.value, tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCursor) {
					t.Fatalf("expected ErrInvalidCursor, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Direction() != tt.wantDir {
				t.Errorf("direction = %q, want %q", c.Direction(), tt.wantDir)
			}
			if c.IsNull() != tt.wantNull {
				t.Errorf("IsNull = %v, want %v", c.IsNull(), tt.wantNull)
			}
			if !tt.wantNull && c.Key() != tt.wantKey {
				t.Errorf("key = %v, want %v", c.Key(), tt.wantKey)
			}
		})
	}
}

func TestSeedMeetsWithoutOverlap(t *testing.T) {
	now := time.UnixMilli(1000)
	older := Seed(Next, now)
	newer := Seed(Prev, now)

	atSeed := Key{Timestamp: 1000, ID: "row"}
	// Next includes keys strictly below its position; Prev strictly above.
	if atSeed.Less(older.Key()) {
		t.Error("row at seed time must not be served by history")
	}
	if !newer.Key().Less(atSeed) {
		t.Error("row at seed time must be served by live mode")
	}
}

func TestValueAndFromWire(t *testing.T) {
	if v := End(Next).Value(); v != nil {
		t.Errorf("null cursor value = %v, want nil", *v)
	}

	c := At(Prev, Key{Timestamp: 42, ID: "x"})
	v := c.Value()
	if v == nil || *v != 42 {
		t.Fatalf("Value() = %v, want 42", v)
	}

	back := FromWire(Prev, v, "x")
	if back != c {
		t.Errorf("FromWire = %v, want %v", back, c)
	}
	if !FromWire(Next, nil, "").IsNull() {
		t.Error("FromWire(nil) should be null")
	}
}

func TestExpect(t *testing.T) {
	c := At(Next, Key{Timestamp: 1})
	if err := c.Expect(Next); err != nil {
		t.Errorf("Expect(Next) = %v", err)
	}
	if err := c.Expect(Prev); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("Expect(Prev) = %v, want ErrInvalidCursor", err)
	}
}

func TestValidateZeroValue(t *testing.T) {
	var c Cursor
	if err := c.Validate(); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("zero cursor Validate() = %v, want ErrInvalidCursor", err)
	}
}
