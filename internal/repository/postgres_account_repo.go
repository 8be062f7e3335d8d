package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/taskboard/internal/model"
)

// PostgresAccountRepo はusersとidentitiesをまとめて扱うリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// UpsertLogin は外部ログインに紐づくユーザーを返す。
// 既存ユーザーならメールアドレスと表示名をIdPの値で更新し、
// 未登録ならusersとidentitiesを同一トランザクションで作成する。
func (r *PostgresAccountRepo) UpsertLogin(ctx context.Context, login *model.ExternalLogin) (*model.UserIdentity, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user := &model.UserIdentity{Email: login.Email, Name: login.Name}

	err = tx.QueryRowContext(ctx,
		`UPDATE users u
		 SET email = $3, name = $4, updated_at = now()
		 FROM identities i
		 WHERE i.user_id = u.id AND i.provider = $1 AND i.provider_user_id = $2
		 RETURNING u.id`,
		login.Provider, login.ProviderUserID, login.Email, login.Name,
	).Scan(&user.ID)

	created := false
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		user.ID = uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, name) VALUES ($1, $2, $3)`,
			user.ID, user.Email, user.Name,
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identities (id, user_id, provider, provider_user_id) VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), user.ID, login.Provider, login.ProviderUserID,
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert identity: %w", err)
		}
		created = true
	default:
		return nil, false, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return user, created, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
