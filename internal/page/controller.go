// Package page はページ表示前の認可フローを提供する。
//
// 各コントローラーはリクエストごとにセッションとストアを参照し、
// ページを描画するかルートへリダイレクトするかを決定する。判定結果はキャッシュしない。
package page

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/model"
)

// RedirectPath は認可に失敗したときのリダイレクト先。
const RedirectPath = "/"

// State は認可フローの状態。
type State string

const (
	StateUnauthenticated      State = "unauthenticated"
	StateAuthenticated        State = "authenticated"
	StateTaskPublic           State = "task_public"
	StateTaskPrivateOrMissing State = "task_private_or_missing"
)

// リダイレクト理由（メトリクスのラベル）
const (
	reasonUnauthenticated = "unauthenticated"
	reasonNotFound        = "not_found"
	reasonPrivate         = "private"
)

// TaskReader はページ表示に必要なタスク・コメントの読み取り操作。
type TaskReader interface {
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error)
	ListComments(ctx context.Context, taskID string) ([]*model.Comment, error)
}

// Decision はコントローラーの判定結果。Redirectが空でなければViewは無効。
type Decision[V any] struct {
	State    State
	Redirect string
	View     V
}

// ShouldRedirect はリダイレクトすべきかを返す。
func (d Decision[V]) ShouldRedirect() bool {
	return d.Redirect != ""
}

// DashboardView はダッシュボードの描画データ。
type DashboardView struct {
	Viewer *model.UserIdentity
	Tasks  []*model.Task
}

// TaskDetailView はタスク詳細ページの描画データ。
type TaskDetailView struct {
	Viewer   *model.UserIdentity
	Task     *model.Task
	Comments *form.CommentProjection
}

// CanComment はコメント投稿ボタンを有効にするかを返す。
func (v TaskDetailView) CanComment() bool {
	return v.Viewer != nil
}

// Controller はダッシュボードとタスク詳細の認可フローを実行する。
type Controller struct {
	sessions auth.SessionProvider
	tasks    TaskReader
	metrics  metrics.MetricsCollector
}

// NewController はControllerを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewController(sessions auth.SessionProvider, tasks TaskReader, collector metrics.MetricsCollector) *Controller {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Controller{
		sessions: sessions,
		tasks:    tasks,
		metrics:  collector,
	}
}

// Viewer は現在のユーザーを返す。セッションの解決に失敗した場合は未ログインとして扱う。
func (c *Controller) Viewer(r *http.Request) *model.UserIdentity {
	user, err := c.sessions.CurrentUser(r)
	if err != nil {
		slog.Error("failed to resolve session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return user
}

// Dashboard はダッシュボードの表示可否を判定する。
// 未ログインならルートへリダイレクトし、ログイン済みなら自分のタスク一覧を返す。
func (c *Controller) Dashboard(r *http.Request) (Decision[DashboardView], error) {
	viewer := c.Viewer(r)
	if viewer == nil {
		c.metrics.RecordPageRedirect("dashboard", reasonUnauthenticated)
		return Decision[DashboardView]{State: StateUnauthenticated, Redirect: RedirectPath}, nil
	}

	tasks, err := c.tasks.ListTasks(r.Context(), viewer.ID)
	if err != nil {
		return Decision[DashboardView]{}, fmt.Errorf("dashboard: %w", err)
	}

	return Decision[DashboardView]{
		State: StateAuthenticated,
		View:  DashboardView{Viewer: viewer, Tasks: tasks},
	}, nil
}

// TaskDetail はタスク詳細ページの表示可否を判定する。
// タスクが存在しない、または非公開の場合は所有者であってもルートへリダイレクトする。
// 公開タスクはセッションの有無に関係なくコメント一覧とともに描画する。
func (c *Controller) TaskDetail(r *http.Request, taskID string) (Decision[TaskDetailView], error) {
	t, err := c.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		return Decision[TaskDetailView]{}, fmt.Errorf("task detail: %w", err)
	}
	if t == nil {
		c.metrics.RecordPageRedirect("task", reasonNotFound)
		return Decision[TaskDetailView]{State: StateTaskPrivateOrMissing, Redirect: RedirectPath}, nil
	}
	if !t.IsPublic {
		c.metrics.RecordPageRedirect("task", reasonPrivate)
		return Decision[TaskDetailView]{State: StateTaskPrivateOrMissing, Redirect: RedirectPath}, nil
	}

	comments, err := c.tasks.ListComments(r.Context(), t.ID)
	if err != nil {
		return Decision[TaskDetailView]{}, fmt.Errorf("task detail comments: %w", err)
	}

	return Decision[TaskDetailView]{
		State: StateTaskPublic,
		View: TaskDetailView{
			Viewer:   c.Viewer(r),
			Task:     t,
			Comments: form.NewCommentProjection(comments),
		},
	}, nil
}
