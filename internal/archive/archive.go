// Package archive stores finished dialog transcripts in a local SQLite
// database. It serves deployments that cannot or do not want to push rows
// to Google Sheets.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/deskhelp/deskbot/internal/archive/migrations"
	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/persist"
)

const timestampLayout = "2006-01-02 15:04:05"

// Archive implements persist.Sink on a local SQLite file.
type Archive struct {
	db *sql.DB
}

// Open creates the database file if needed, applies migrations and returns
// a ready sink.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// SQLite handles concurrent writers poorly; serialize everything
	// through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	logging.Infof("archive initialized at %s", path)
	return &Archive{db: db}, nil
}

// Ready always holds once Open succeeded.
func (a *Archive) Ready() bool {
	return a.db != nil
}

// AppendBatch inserts all rows in one transaction, so a failed batch leaves
// no partial writes behind.
func (a *Archive) AppendBatch(ctx context.Context, rows []persist.Row) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversations (recorded_at, user_id, display_name, source_tag, transcript)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.Format(timestampLayout), r.UserID, r.DisplayName, r.SourceTag, r.Transcript); err != nil {
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Count reports the number of stored conversations.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// classify treats lock contention as transient and everything else (schema
// drift, disk full surfacing as a constraint error) as permanent.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	kind := persist.Permanent
	if strings.Contains(msg, "busy") || strings.Contains(msg, "locked") {
		kind = persist.Transient
	}
	return &persist.SinkError{Kind: kind, Code: "sqlite", Err: err}
}
