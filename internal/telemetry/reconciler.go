package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saaga0h/shelf-bridge/internal/shelfstate"
)

var (
	// ErrUnresolvedShelf means neither topic nor body named a valid shelf
	ErrUnresolvedShelf = errors.New("unresolved shelf")

	// ErrNoParsableValue means the message held no numeric value for any slot it addresses
	ErrNoParsableValue = errors.New("no parsable value")

	// ErrPersistence wraps state store failures
	ErrPersistence = errors.New("shelf state write failed")
)

// Payload keys understood on telemetry messages
const (
	KeyShelf             = "shelf"
	KeyPrimaryDistance   = "d1_mm"
	KeyPrimaryAlt        = "d1"
	KeySecondaryDistance = "d2_mm"
	KeySecondaryAlt      = "d2"
	KeyWeightGrams       = "weight_g"
	KeyWeightKilograms   = "weight_kg"
	KeyDevice            = "device"
	KeyTimestamp         = "ts"
)

// Reading is one normalized value and the shelf it belongs to
type Reading struct {
	Shelf int
	Field shelfstate.Field
	Value float64
}

// StateWriter is the part of the shelf state store the reconciler needs
type StateWriter interface {
	Upsert(ctx context.Context, shelf int, field shelfstate.Field, value float64) error
}

// Reconciler folds telemetry messages into per-shelf state
type Reconciler struct {
	store  StateWriter
	logger *slog.Logger
}

// NewReconciler creates a reconciler writing through store
func NewReconciler(store StateWriter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

// Extract parses the slot a single shelf owns
func Extract(shelf int, body map[string]any) (Reading, bool) {
	var (
		v  float64
		ok bool
	)
	switch shelf {
	case shelfstate.ShelfPrimaryDistance:
		v, ok = firstNumber(body, KeyPrimaryDistance, KeyPrimaryAlt)
	case shelfstate.ShelfSecondaryDistance:
		v, ok = firstNumber(body, KeySecondaryDistance, KeySecondaryAlt)
	case shelfstate.ShelfWeight:
		v, ok = ParseGrams(body)
	default:
		return Reading{}, false
	}
	if !ok {
		return Reading{}, false
	}
	field, _ := shelfstate.FieldForShelf(shelf)
	return Reading{Shelf: shelf, Field: field, Value: v}, true
}

// ExtractBatch parses every slot independently, in shelf order
func ExtractBatch(body map[string]any) []Reading {
	var readings []Reading
	for _, shelf := range shelfstate.Shelves {
		if r, ok := Extract(shelf, body); ok {
			readings = append(readings, r)
		}
	}
	return readings
}

// Plan decides which readings a message produces. A valid shelf from the topic or
// body selects single-shelf mode; otherwise the message is treated as a batch.
func Plan(topic string, body map[string]any) (readings []Reading, batch bool) {
	if shelf, ok := ResolveShelf(topic, body); ok && shelfstate.ValidShelf(shelf) {
		if r, ok := Extract(shelf, body); ok {
			return []Reading{r}, false
		}
		return nil, false
	}
	return ExtractBatch(body), true
}

// Apply reconciles one telemetry message and returns the readings written.
// Each reading is its own upsert; one failing write does not stop the others.
func (r *Reconciler) Apply(ctx context.Context, topic string, body map[string]any) ([]Reading, error) {
	readings, batch := Plan(topic, body)
	if len(readings) == 0 {
		if batch {
			return nil, fmt.Errorf("%w: %w (batch)", ErrNoParsableValue, ErrUnresolvedShelf)
		}
		return nil, ErrNoParsableValue
	}

	var (
		written []Reading
		errs    []error
	)
	for _, rd := range readings {
		if err := r.store.Upsert(ctx, rd.Shelf, rd.Field, rd.Value); err != nil {
			errs = append(errs, fmt.Errorf("%w: shelf %d: %w", ErrPersistence, rd.Shelf, err))
			continue
		}
		written = append(written, rd)
	}

	r.logger.Debug("Reconciled telemetry",
		"topic", topic,
		"batch", batch,
		"planned", len(readings),
		"written", len(written))

	return written, errors.Join(errs...)
}
