package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Properties returns the PropertyStore view of one document.
func (s *LibSQLStore) Properties(documentID string) host.PropertyStore {
	return &documentProperties{db: s.db, documentID: documentID}
}

// DeleteDocument drops every property and event recorded for a document.
func (s *LibSQLStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cell_properties WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete properties: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM control_events WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM control_event_watermarks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete watermark: %w", err)
	}
	return tx.Commit()
}

// --- Cell properties ---

// documentProperties implements host.PropertyStore over the cell_properties table.
type documentProperties struct {
	db         *sql.DB
	documentID string
}

func (p *documentProperties) Get(ctx context.Context, cell schema.CellRef, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM cell_properties
		 WHERE document_id = ? AND sheet = ? AND col_idx = ? AND row_idx = ? AND key = ?`,
		p.documentID, cell.Sheet, cell.Col, cell.Row, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeError("get property", cell, err)
	}
	return value, true, nil
}

func (p *documentProperties) Set(ctx context.Context, cell schema.CellRef, key, value string) error {
	return p.SetMany(ctx, cell, map[string]string{key: value})
}

func (p *documentProperties) Has(ctx context.Context, cell schema.CellRef, key string) (bool, error) {
	_, ok, err := p.Get(ctx, cell, key)
	return ok, err
}

func (p *documentProperties) Delete(ctx context.Context, cell schema.CellRef, key string) error {
	return p.DeleteMany(ctx, cell, []string{key})
}

func (p *documentProperties) GetAll(ctx context.Context, cell schema.CellRef) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value FROM cell_properties
		 WHERE document_id = ? AND sheet = ? AND col_idx = ? AND row_idx = ?`,
		p.documentID, cell.Sheet, cell.Col, cell.Row,
	)
	if err != nil {
		return nil, storeError("list properties", cell, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storeError("scan property", cell, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetMany upserts all values in a single transaction.
func (p *documentProperties) SetMany(ctx context.Context, cell schema.CellRef, values map[string]string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", cell, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cell_properties (document_id, sheet, col_idx, row_idx, key, value, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(document_id, sheet, col_idx, row_idx, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			p.documentID, cell.Sheet, cell.Col, cell.Row, k, v, now,
		); err != nil {
			return storeError("set property "+k, cell, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit properties", cell, err)
	}
	return nil
}

// DeleteMany removes all keys in a single transaction.
func (p *documentProperties) DeleteMany(ctx context.Context, cell schema.CellRef, keys []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", cell, err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cell_properties
			 WHERE document_id = ? AND sheet = ? AND col_idx = ? AND row_idx = ? AND key = ?`,
			p.documentID, cell.Sheet, cell.Col, cell.Row, k,
		); err != nil {
			return storeError("delete property "+k, cell, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit properties", cell, err)
	}
	return nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Get next sequence number for this document
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM control_events WHERE document_id = ?`, event.DocumentID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO control_events (document_id, cell, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.DocumentID, event.Cell, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, documentID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, cell, event_type, payload, timestamp, sequence
		 FROM control_events WHERE document_id = ? AND sequence > ? ORDER BY sequence ASC`,
		documentID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetCellEvents(ctx context.Context, documentID, cell string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, cell, event_type, payload, timestamp, sequence
		 FROM control_events WHERE document_id = ? AND cell = ? ORDER BY sequence ASC`,
		documentID, cell,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// prunable matches events older than the cutoff that are not the newest
// event of their cell, so every cell keeps the record of its current control.
const prunable = `timestamp < ? AND EXISTS (
	SELECT 1 FROM control_events later
	WHERE later.document_id = control_events.document_id
	  AND later.cell = control_events.cell
	  AND later.sequence > control_events.sequence)`

// PruneEvents deletes superseded events older than before and returns how
// many were removed. The highest removed sequence of each document is kept
// as a watermark for replay.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO control_event_watermarks (document_id, pruned_through)
		 SELECT document_id, MAX(sequence) FROM control_events WHERE `+prunable+`
		 GROUP BY document_id
		 ON CONFLICT (document_id) DO UPDATE
		 SET pruned_through = MAX(pruned_through, excluded.pruned_through)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("record prune watermark: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM control_events WHERE `+prunable, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}

// PrunedThrough returns the highest sequence pruning removed from a
// document's log, or 0 when nothing was pruned.
func (s *LibSQLStore) PrunedThrough(ctx context.Context, documentID string) (int64, error) {
	var mark int64
	err := s.db.QueryRowContext(ctx,
		`SELECT pruned_through FROM control_event_watermarks WHERE document_id = ?`, documentID,
	).Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read prune watermark: %w", err)
	}
	return mark, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Cell, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- helpers ---

func storeError(op string, cell schema.CellRef, err error) *schema.CellviewError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCell(cell).WithCause(err)
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
