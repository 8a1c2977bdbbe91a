// Package warehouse implements the target adapter on a SQL warehouse. The
// load is asynchronous: Load fires a warehouse-side loader function over the
// record's stage path and returns; the audit reconciles by polling Count.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	_ "github.com/lib/pq"

	"driveplane/internal/adapters"
	"driveplane/internal/store"
)

// identifierPattern accepts dotted SQL identifiers from configuration.
// Anything else never reaches statement assembly.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Config names the warehouse-side objects the adapter talks to.
type Config struct {
	// Table is the dotted name of the landing table.
	Table string
	// TimestampColumn is the column windows are ranged over.
	TimestampColumn string
	// LoadFunction is the warehouse function that ingests a stage path.
	LoadFunction string
}

func (c Config) validate() error {
	for _, ident := range []string{c.Table, c.TimestampColumn, c.LoadFunction} {
		if !identifierPattern.MatchString(ident) {
			return fmt.Errorf("warehouse: invalid identifier %q", ident)
		}
	}
	return nil
}

// Target loads, counts and deletes windowed rows.
type Target struct {
	db  *sql.DB
	cfg Config
	log *slog.Logger
}

// New connects to the warehouse and verifies the connection.
func New(ctx context.Context, databaseURL string, cfg Config, log *slog.Logger) (*Target, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("warehouse: failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("warehouse: failed to ping: %w", err)
	}

	return &Target{db: db, cfg: cfg, log: log}, nil
}

// Close closes the warehouse connection.
func (t *Target) Close() error {
	return t.db.Close()
}

// Load triggers the warehouse-side loader for the record's stage path. The
// function enqueues the ingest and returns before rows are visible.
func (t *Target) Load(ctx context.Context, rec *store.PipelineRecord) error {
	stagePath := rec.StagePath()
	if stagePath == "" {
		return fmt.Errorf("warehouse load: record %s has no stage path", rec.PipelineID)
	}

	query := fmt.Sprintf("SELECT %s($1)", t.cfg.LoadFunction)
	if _, err := t.db.ExecContext(ctx, query, stagePath); err != nil {
		return fmt.Errorf("warehouse load: %w", err)
	}

	t.log.Info("warehouse load triggered",
		"pipeline_id", rec.PipelineID,
		"stage_path", stagePath,
	)
	return nil
}

// Count returns the number of rows landed for the window.
func (t *Target) Count(ctx context.Context, id store.Identity, w adapters.Window) (int64, error) {
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s >= $1 AND %s < $2",
		t.cfg.Table, t.cfg.TimestampColumn, t.cfg.TimestampColumn,
	)

	var count int64
	if err := t.db.QueryRowContext(ctx, query, w.Start, w.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("warehouse count: %w", err)
	}
	return count, nil
}

// Delete removes the window's rows. Used by the audit's failure cleanup.
func (t *Target) Delete(ctx context.Context, id store.Identity, w adapters.Window) error {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s >= $1 AND %s < $2",
		t.cfg.Table, t.cfg.TimestampColumn, t.cfg.TimestampColumn,
	)

	res, err := t.db.ExecContext(ctx, query, w.Start, w.End)
	if err != nil {
		return fmt.Errorf("warehouse delete: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		t.log.Info("deleted target rows",
			"table", t.cfg.Table,
			"rows", n,
			"window_start", w.Start,
			"window_end", w.End,
		)
	}
	return nil
}
