package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// schemaStep is one numbered script under migrations/, named NNN_label.sql.
type schemaStep struct {
	version int
	label   string
	script  string
}

// loadSchemaSteps reads the embedded scripts ordered by version.
func loadSchemaSteps() ([]schemaStep, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list cellview migrations: %w", err)
	}
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		base := strings.TrimSuffix(path.Base(name), ".sql")
		num, label, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("cellview migration %q: want NNN_label.sql", base)
		}
		version, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("cellview migration %q: bad version: %w", base, err)
		}
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read cellview migration %q: %w", base, err)
		}
		steps = append(steps, schemaStep{version: version, label: label, script: string(body)})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	return steps, nil
}

// runMigrations brings the cellview schema up to the newest embedded script.
// Each script runs in its own transaction together with its ledger row.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS cellview_schema (
		version    INTEGER PRIMARY KEY,
		label      TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create cellview_schema ledger: %w", err)
	}

	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM cellview_schema`).Scan(&applied); err != nil {
		return fmt.Errorf("read cellview_schema ledger: %w", err)
	}

	steps, err := loadSchemaSteps()
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= applied {
			continue
		}
		if err := applyStep(ctx, db, step); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, step schemaStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cellview migration %03d: begin: %w", step.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(step.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cellview migration %03d_%s: %w", step.version, step.label, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cellview_schema (version, label) VALUES (?, ?)`, step.version, step.label,
	); err != nil {
		return fmt.Errorf("cellview migration %03d: record: %w", step.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cellview migration %03d: commit: %w", step.version, err)
	}
	return nil
}

// sqlStatements drops "--" comment lines and splits the rest on semicolons.
// Scripts must not put semicolons inside string literals.
func sqlStatements(script string) []string {
	var b strings.Builder
	for line := range strings.Lines(script) {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
	}
	var stmts []string
	for part := range strings.SplitSeq(b.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
