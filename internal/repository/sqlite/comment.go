package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

var _ repository.CommentRepository = (*DB)(nil)

// CreateComment inserts a comment and sets its BackendID. The caller decides
// CreatedAt and CreatedBy.
func (db *DB) CreateComment(ctx context.Context, comment *model.Comment) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments
		   (example_id, text, created_at, created_by, modified_at, modified_by, dismissed, dismissed_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ExampleID,
		comment.Text,
		comment.CreatedAt,
		comment.CreatedBy,
		comment.ModifiedAt,
		comment.ModifiedBy,
		comment.Dismissed,
		comment.DismissedBy,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment on example %d: %w", comment.ExampleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading comment id: %w", err)
	}
	comment.BackendID = id
	return nil
}

func (db *DB) GetComment(ctx context.Context, id int64) (*model.Comment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, example_id, text, created_at, created_by, modified_at, modified_by, dismissed, dismissed_by
		 FROM comments WHERE id = ?`,
		id,
	)
	c, err := scanComment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, commentNotFound(id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %d: %w", id, err)
	}
	return c, nil
}

// UpdateComment writes the mutable fields of a comment. Creation fields are
// never rewritten, whatever the caller passes.
func (db *DB) UpdateComment(ctx context.Context, comment *model.Comment) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE comments
		 SET text = ?, modified_at = ?, modified_by = ?, dismissed = ?, dismissed_by = ?
		 WHERE id = ?`,
		comment.Text,
		comment.ModifiedAt,
		comment.ModifiedBy,
		comment.Dismissed,
		comment.DismissedBy,
		comment.BackendID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating comment %d: %w", comment.BackendID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return commentNotFound(comment.BackendID)
	}
	return nil
}

// ListComments returns the comments of an example in insertion order. The id
// breaks ties between comments created in the same second.
func (db *DB) ListComments(ctx context.Context, exampleID int64) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, example_id, text, created_at, created_by, modified_at, modified_by, dismissed, dismissed_by
		 FROM comments
		 WHERE example_id = ?
		 ORDER BY created_at ASC, id ASC`,
		exampleID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for example %d: %w", exampleID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func scanComment(s scanner) (*model.Comment, error) {
	var c model.Comment
	err := s.Scan(
		&c.BackendID, &c.ExampleID, &c.Text,
		&c.CreatedAt, &c.CreatedBy,
		&c.ModifiedAt, &c.ModifiedBy,
		&c.Dismissed, &c.DismissedBy,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func commentNotFound(id int64) *apperror.AppError {
	return apperror.NotFound("comment", strconv.FormatInt(id, 10)).WithCode(apperror.CodeCommentNotFound)
}
