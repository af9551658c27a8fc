package shelfstate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no state has been recorded for the shelf yet
	ErrNotFound = errors.New("shelf state not found")

	// ErrInvalidShelf means the shelf identity is outside the known slots
	ErrInvalidShelf = errors.New("invalid shelf identity")

	// ErrUnknownField means the field is not a shelf state column
	ErrUnknownField = errors.New("unknown shelf state field")
)

// Shelf identities. Each slot reports exactly one kind of reading.
const (
	ShelfPrimaryDistance   = 1
	ShelfSecondaryDistance = 2
	ShelfWeight            = 3
)

// Shelves lists every valid shelf identity in ascending order
var Shelves = []int{ShelfPrimaryDistance, ShelfSecondaryDistance, ShelfWeight}

// Field names a stored reading. The values double as storage column/hash field names.
type Field string

const (
	FieldPrimaryDistance   Field = "d1_mm"
	FieldSecondaryDistance Field = "d2_mm"
	FieldWeight            Field = "weight_g"
)

// FieldUpdatedAt is the last-updated marker refreshed on every upsert
const FieldUpdatedAt = "updated_at"

// ValidShelf reports whether shelf is one of the fixed slots
func ValidShelf(shelf int) bool {
	return shelf >= ShelfPrimaryDistance && shelf <= ShelfWeight
}

// FieldForShelf returns the reading field a shelf owns
func FieldForShelf(shelf int) (Field, error) {
	switch shelf {
	case ShelfPrimaryDistance:
		return FieldPrimaryDistance, nil
	case ShelfSecondaryDistance:
		return FieldSecondaryDistance, nil
	case ShelfWeight:
		return FieldWeight, nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidShelf, shelf)
}

// Valid reports whether f is a reading field
func (f Field) Valid() bool {
	switch f {
	case FieldPrimaryDistance, FieldSecondaryDistance, FieldWeight:
		return true
	}
	return false
}

// State is the latest known reading set for one shelf. Nil fields were never written.
type State struct {
	Shelf     int       `json:"shelf"`
	D1mm      *float64  `json:"d1_mm"`
	D2mm      *float64  `json:"d2_mm"`
	WeightG   *float64  `json:"weight_g"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value returns the reading stored under f
func (s *State) Value(f Field) (float64, bool) {
	var v *float64
	switch f {
	case FieldPrimaryDistance:
		v = s.D1mm
	case FieldSecondaryDistance:
		v = s.D2mm
	case FieldWeight:
		v = s.WeightG
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// set writes value into the field f
func (s *State) set(f Field, value float64) {
	v := value
	switch f {
	case FieldPrimaryDistance:
		s.D1mm = &v
	case FieldSecondaryDistance:
		s.D2mm = &v
	case FieldWeight:
		s.WeightG = &v
	}
}

// Store persists shelf state. Upsert touches only the named field plus the
// last-updated marker; each call is one atomic write keyed by shelf.
type Store interface {
	Upsert(ctx context.Context, shelf int, field Field, value float64) error
	Read(ctx context.Context, shelf int) (*State, error)
	Ping(ctx context.Context) error
}

func checkWrite(shelf int, field Field) error {
	if !ValidShelf(shelf) {
		return fmt.Errorf("%w: %d", ErrInvalidShelf, shelf)
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}
