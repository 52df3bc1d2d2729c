package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

var _ repository.RunRepository = (*DB)(nil)

func (db *DB) RecordRun(ctx context.Context, run *model.Run) error {
	if run.RanAt.IsZero() {
		run.RanAt = time.Now()
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (example_id, succeeded, output, ran_at) VALUES (?, ?, ?, ?)`,
		run.ExampleID, run.Succeeded, run.Output, run.RanAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording run for example %d: %w", run.ExampleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading run id: %w", err)
	}
	run.ID = id
	return nil
}

func (db *DB) LatestRun(ctx context.Context, exampleID int64) (*model.Run, error) {
	var run model.Run
	var ranAt int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, example_id, succeeded, output, ran_at
		 FROM runs WHERE example_id = ?
		 ORDER BY id DESC LIMIT 1`,
		exampleID,
	).Scan(&run.ID, &run.ExampleID, &run.Succeeded, &run.Output, &ranAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: latest run for example %d: %w", exampleID, err)
	}
	run.RanAt = time.Unix(ranAt, 0)
	return &run, nil
}
