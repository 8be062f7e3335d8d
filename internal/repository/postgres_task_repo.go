package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskboard/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも未検出として扱う。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if !isValidID(id) {
		return nil, nil
	}

	task := &model.Task{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, text, is_public, owner_id, created_at FROM tasks WHERE id = $1`,
		id,
	).Scan(&task.ID, &task.Text, &task.IsPublic, &task.OwnerID, &task.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}

	return task, nil
}

// Create はタスクを作成する。IDとCreatedAtはここで採番される。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	task.ID = uuid.New().String()
	task.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, text, is_public, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		task.ID, task.Text, task.IsPublic, task.OwnerID, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListByOwner は所有者のタスク一覧を作成日時の降順で返す。
func (r *PostgresTaskRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, is_public, owner_id, created_at
		 FROM tasks
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.Text, &task.IsPublic, &task.OwnerID, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// DeleteByID は指定IDのタスクを削除する。存在しない場合はErrNotFoundを返す。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return ErrNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
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

// isValidID はIDがUUID形式かどうかを判定する。
// uuid列に不正な値を渡すとPostgreSQLが構文エラーを返すため、クエリ前に弾く。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
