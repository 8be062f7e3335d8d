package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskboard/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if !isValidID(id) {
		return nil, nil
	}

	c := &model.Comment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, task_id, text, author_id, author_name, created_at
		 FROM comments WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.TaskID, &c.Text, &c.AuthorID, &c.AuthorName, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}

	return c, nil
}

// ListByTaskID はtask_idが一致するコメントを作成順に返す。
func (r *PostgresCommentRepo) ListByTaskID(ctx context.Context, taskID string) ([]*model.Comment, error) {
	if !isValidID(taskID) {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, text, author_id, author_name, created_at
		 FROM comments
		 WHERE task_id = $1
		 ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Text, &c.AuthorID, &c.AuthorName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// Create はコメントを作成する。IDとCreatedAtはここで採番される。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = uuid.New().String()
	comment.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, task_id, text, author_id, author_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, comment.TaskID, comment.Text, comment.AuthorID, comment.AuthorName, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのコメントを削除する。存在しない場合はErrNotFoundを返す。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return ErrNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
