package shelfstate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/saaga0h/shelf-bridge/pkg/postgres"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS shelf_state (
		shelf      INTEGER PRIMARY KEY CHECK (shelf BETWEEN 1 AND 3),
		d1_mm      DOUBLE PRECISION,
		d2_mm      DOUBLE PRECISION,
		weight_g   DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const seedSQL = `
	INSERT INTO shelf_state (shelf) VALUES ($1)
	ON CONFLICT (shelf) DO NOTHING
`

// PostgresStore keeps one row per shelf in the shelf_state table
type PostgresStore struct {
	db     postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a store on an already connected client
func NewPostgresStore(db postgres.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the table and seeds one row per shelf
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to create shelf_state: %w", err)
		}
		for _, shelf := range Shelves {
			if _, err := tx.ExecContext(ctx, seedSQL, shelf); err != nil {
				return fmt.Errorf("failed to seed shelf %d: %w", shelf, err)
			}
		}
		return nil
	})
}

// upsertQuery builds the statement for one field. field must already be validated;
// it is interpolated as a column name.
func upsertQuery(field Field) string {
	return fmt.Sprintf(`
	INSERT INTO shelf_state (shelf, %[1]s, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (shelf) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at
`, field)
}

// Upsert writes one field of the shelf row
func (s *PostgresStore) Upsert(ctx context.Context, shelf int, field Field, value float64) error {
	if err := checkWrite(shelf, field); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, upsertQuery(field), shelf, value); err != nil {
		return fmt.Errorf("failed to upsert shelf %d %s: %w", shelf, field, err)
	}

	s.logger.Debug("Stored shelf reading", "shelf", shelf, "field", field, "value", value)
	return nil
}

// Read loads the shelf row
func (s *PostgresStore) Read(ctx context.Context, shelf int) (*State, error) {
	rows, err := s.db.Query(ctx,
		`SELECT shelf, d1_mm, d2_mm, weight_g, updated_at FROM shelf_state WHERE shelf = $1`, shelf)
	if err != nil {
		return nil, fmt.Errorf("failed to query shelf %d: %w", shelf, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query shelf %d: %w", shelf, err)
		}
		return nil, fmt.Errorf("%w: shelf %d", ErrNotFound, shelf)
	}

	var st State
	var d1, d2, wg sql.NullFloat64
	if err := rows.Scan(&st.Shelf, &d1, &d2, &wg, &st.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan shelf %d: %w", shelf, err)
	}
	if d1.Valid {
		st.set(FieldPrimaryDistance, d1.Float64)
	}
	if d2.Valid {
		st.set(FieldSecondaryDistance, d2.Float64)
	}
	if wg.Valid {
		st.set(FieldWeight, wg.Float64)
	}

	return &st, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
