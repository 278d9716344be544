// Package settings stores keyed configuration blobs. Blobs are opaque JSON
// objects; writes merge shallowly so clients can PATCH a single knob without
// resending the whole document. Typed subsets decode just the keys a caller
// cares about and tolerate anything else in the blob.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Well-known setting keys.
const (
	KeyStages             = "stages"
	KeyConversion         = "conversion"
	KeyDuplicateDetection = "duplicate_detection"
	KeyOwnership          = "ownership"
)

// Repository provides settings blob persistence.
type Repository interface {
	Get(ctx context.Context, key string) (map[string]any, error)
	Put(ctx context.Context, key string, value map[string]any) error
}

// Repo implements Repository with PostgreSQL JSONB storage.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo creates a new settings repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// Get retrieves a settings blob. A missing key is an empty blob, not an
// error; every setting has a default.
func (r *Repo) Get(ctx context.Context, key string) (map[string]any, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("get settings %q: %w", key, err)
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode settings %q: %w", key, err)
	}
	if value == nil {
		value = map[string]any{}
	}
	return value, nil
}

// Put stores a settings blob, replacing the stored document.
func (r *Repo) Put(ctx context.Context, key string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode settings %q: %w", key, err)
	}

	query := `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("put settings %q: %w", key, err)
	}
	return nil
}
