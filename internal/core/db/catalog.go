package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/formkeeper/internal/specdoc"
	"github.com/solatis/formkeeper/internal/types"
)

// SpecRecord is one stored version of a declarative form document.
type SpecRecord struct {
	SpecID    types.SpecID `db:"spec_id"`
	Name      string       `db:"name"`
	Version   int          `db:"version"`
	Document  string       `db:"document"`
	CreatedAt string       `db:"created_at"`
}

// Created parses the record's creation time.
func (r SpecRecord) Created() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.CreatedAt)
}

// Catalog stores named, versioned form documents. It never stores form
// state.
type Catalog struct {
	db      *sqlx.DB
	queries *Queries
	logger  *slog.Logger
}

// NewCatalog wraps a migrated database.
func NewCatalog(db *sqlx.DB, logger *slog.Logger) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db, queries: queries, logger: logger}, nil
}

// Put stores document as the next version of name. The document must parse;
// binding (evaluator and rule names) is left to the consumer.
func (c *Catalog) Put(ctx context.Context, name string, document []byte) (SpecRecord, error) {
	if name == "" {
		return SpecRecord{}, fmt.Errorf("%w: name is required", types.ErrInvalidSpec)
	}
	if _, err := specdoc.Parse(document); err != nil {
		return SpecRecord{}, err
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return SpecRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := c.queries.WithTx(tx)

	var latest int
	if err := q.Get(ctx, "latest-version", &latest, name); err != nil {
		return SpecRecord{}, fmt.Errorf("failed to read latest version of %q: %w", name, err)
	}

	rec := SpecRecord{
		SpecID:    types.NewSpecID(),
		Name:      name,
		Version:   latest + 1,
		Document:  string(document),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := q.Exec(ctx, "insert-spec", rec.SpecID, rec.Name, rec.Version, rec.Document, rec.CreatedAt); err != nil {
		return SpecRecord{}, fmt.Errorf("failed to insert %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return SpecRecord{}, fmt.Errorf("failed to commit %q: %w", name, err)
	}

	c.logger.Info("form spec stored", "name", rec.Name, "version", rec.Version, "spec_id", rec.SpecID)
	return rec, nil
}

// Get returns the latest version of name.
func (c *Catalog) Get(ctx context.Context, name string) (SpecRecord, error) {
	var rec SpecRecord
	if err := c.queries.Get(ctx, "get-latest-spec", &rec, name); err != nil {
		return SpecRecord{}, notFound(name, err)
	}
	return rec, nil
}

// GetVersion returns a specific version of name.
func (c *Catalog) GetVersion(ctx context.Context, name string, version int) (SpecRecord, error) {
	var rec SpecRecord
	if err := c.queries.Get(ctx, "get-spec-version", &rec, name, version); err != nil {
		return SpecRecord{}, notFound(fmt.Sprintf("%s@%d", name, version), err)
	}
	return rec, nil
}

// List returns the latest version of every name, ordered by name.
func (c *Catalog) List(ctx context.Context) ([]SpecRecord, error) {
	var recs []SpecRecord
	if err := c.queries.Select(ctx, "list-latest-specs", &recs); err != nil {
		return nil, fmt.Errorf("failed to list form specs: %w", err)
	}
	return recs, nil
}

func notFound(name string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", types.ErrSpecNotFound, name)
	}
	return fmt.Errorf("failed to read %s: %w", name, err)
}
