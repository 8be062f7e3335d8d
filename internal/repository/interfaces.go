// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskboard/internal/model"
)

// ErrNotFound は削除対象のドキュメントが存在しない場合に返される。
var ErrNotFound = errors.New("document not found")

// AccountRepository は外部ログインとユーザーの対応を管理する。
type AccountRepository interface {
	// UpsertLogin はログインに対応するユーザーを返す。未登録なら作成し、createdにtrueを返す。
	UpsertLogin(ctx context.Context, login *model.ExternalLogin) (user *model.UserIdentity, created bool, err error)
}

// SessionRepository はセッションの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindUser は有効なセッションの持ち主を返す。無効ならnil。
	FindUser(ctx context.Context, sessionID string) (*model.UserIdentity, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを全て削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// Create はタスクを作成する。IDとCreatedAtはここで採番される。
	Create(ctx context.Context, task *model.Task) error

	// ListByOwner は所有者のタスク一覧を作成日時の降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error)

	// DeleteByID は指定IDのタスクを削除する。存在しない場合はErrNotFoundを返す。
	// コメントはCASCADE削除されない。
	DeleteByID(ctx context.Context, id string) error
}

// CommentRepository はコメントの永続化インターフェース。
// 入力値の検証や所有者チェックは行わない。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// ListByTaskID はtask_idが一致するコメントを作成順に返す。
	ListByTaskID(ctx context.Context, taskID string) ([]*model.Comment, error)

	// Create はコメントを作成する。IDとCreatedAtはここで採番される。
	Create(ctx context.Context, comment *model.Comment) error

	// DeleteByID は指定IDのコメントを削除する。存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}
