package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

var _ repository.ExampleRepository = (*DB)(nil)

// latestSnapshotSelect joins every example to its newest snapshot. Callers
// append their own WHERE/ORDER BY.
const latestSnapshotSelect = `
	SELECT e.id, e.language, e.package,
	       s.id, s.author, s.status, s.title, s.prelude, s.code, s.postlude, s.created_at
	FROM examples e
	JOIN snapshots s ON s.id = (
		SELECT MAX(id) FROM snapshots WHERE example_id = e.id
	)`

// CreateExample inserts a new example and its first snapshot in one
// transaction, then fills in BackendID, SnapshotID and SnapshotAt.
//
// The AUTOINCREMENT id of the examples row becomes the backend id, so ids
// are positive and never reused, even after an example is deleted.
func (db *DB) CreateExample(ctx context.Context, example *model.Example) error {
	now := time.Now().Unix()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning create example: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO examples (language, package, created_by, created_at)
		 VALUES (?, ?, ?, ?)`,
		example.Language, example.Package, example.User, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating example: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading example id: %w", err)
	}

	snapshotID, err := insertSnapshot(ctx, tx, id, example, now)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing example: %w", err)
	}

	example.BackendID = id
	example.SnapshotID = snapshotID
	example.SnapshotAt = now
	return nil
}

// AppendSnapshot records a new content version of an existing example.
func (db *DB) AppendSnapshot(ctx context.Context, example *model.Example) error {
	now := time.Now().Unix()
	snapshotID, err := insertSnapshot(ctx, db.conn, example.BackendID, example, now)
	if err != nil {
		return err
	}
	example.SnapshotID = snapshotID
	example.SnapshotAt = now
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSnapshot(ctx context.Context, ex execer, exampleID int64, example *model.Example, now int64) (int64, error) {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO snapshots (example_id, author, status, title, prelude, code, postlude, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exampleID,
		example.User,
		string(example.Status),
		example.Title,
		example.Prelude,
		example.Code,
		example.Postlude,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: inserting snapshot for example %d: %w", exampleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading snapshot id: %w", err)
	}
	return id, nil
}

// GetExample returns the latest snapshot of an example. A deleted example is
// reported as not found.
func (db *DB) GetExample(ctx context.Context, id int64) (*model.Example, error) {
	row := db.conn.QueryRowContext(ctx, latestSnapshotSelect+` WHERE e.id = ?`, id)

	ex, err := scanExample(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, exampleNotFound(id)
		}
		return nil, fmt.Errorf("sqlite: getting example %d: %w", id, err)
	}
	if ex.Status == model.StatusDeleted {
		return nil, exampleNotFound(id)
	}
	return ex, nil
}

// ListExamples returns the latest snapshot of every non-deleted example of a
// package, oldest example first.
func (db *DB) ListExamples(ctx context.Context, resource model.ResourceID) ([]model.Example, error) {
	return db.queryExamples(ctx,
		latestSnapshotSelect+`
		WHERE e.language = ? AND e.package = ? AND s.status <> ?
		ORDER BY e.id ASC`,
		resource.Language, resource.Package, string(model.StatusDeleted),
	)
}

// QueryExamples returns examples across all packages whose latest snapshot
// has one of the given statuses. No statuses means no results.
func (db *DB) QueryExamples(ctx context.Context, statuses []model.Status) ([]model.Example, error) {
	if len(statuses) == 0 {
		return []model.Example{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}

	return db.queryExamples(ctx,
		latestSnapshotSelect+`
		WHERE s.status IN (`+placeholders+`)
		ORDER BY e.id ASC`,
		args...,
	)
}

// History returns every snapshot of an example, oldest first.
func (db *DB) History(ctx context.Context, id int64) ([]model.Example, error) {
	history, err := db.queryExamples(ctx, `
		SELECT e.id, e.language, e.package,
		       s.id, s.author, s.status, s.title, s.prelude, s.code, s.postlude, s.created_at
		FROM examples e
		JOIN snapshots s ON s.example_id = e.id
		WHERE e.id = ?
		ORDER BY s.id ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, exampleNotFound(id)
	}
	return history, nil
}

// PackageSummaries counts non-deleted examples per package, biggest first.
// CurrentAccessor is left for the caller to fill from the lock table.
func (db *DB) PackageSummaries(ctx context.Context) ([]model.PackageSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.language, e.package, COUNT(*) AS n
		FROM examples e
		JOIN snapshots s ON s.id = (
			SELECT MAX(id) FROM snapshots WHERE example_id = e.id
		)
		WHERE s.status <> ?
		GROUP BY e.language, e.package
		ORDER BY n DESC, e.language ASC, e.package ASC`,
		string(model.StatusDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarising packages: %w", err)
	}
	defer rows.Close()

	summaries := []model.PackageSummary{}
	for rows.Next() {
		var s model.PackageSummary
		if err := rows.Scan(&s.Language, &s.Package, &s.ExampleCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning package summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating package summaries: %w", err)
	}
	return summaries, nil
}

func (db *DB) queryExamples(ctx context.Context, query string, args ...any) ([]model.Example, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing examples: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty result encodes as [] rather than null.
	examples := []model.Example{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning example row: %w", err)
		}
		examples = append(examples, *ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating examples: %w", err)
	}
	return examples, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExample(s scanner) (*model.Example, error) {
	var ex model.Example
	var status string
	err := s.Scan(
		&ex.BackendID, &ex.Language, &ex.Package,
		&ex.SnapshotID, &ex.User, &status,
		&ex.Title, &ex.Prelude, &ex.Code, &ex.Postlude,
		&ex.SnapshotAt,
	)
	if err != nil {
		return nil, err
	}
	ex.Status = model.Status(status)
	ex.Comments = []model.Comment{}
	return &ex, nil
}

func exampleNotFound(id int64) *apperror.AppError {
	return apperror.NotFound("example", strconv.FormatInt(id, 10)).WithCode(apperror.CodeExampleNotFound)
}
