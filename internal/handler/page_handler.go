package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/page"
)

// TaskServiceInterface はタスク・コメントのハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	CreateTask(ctx context.Context, ownerID string, draft form.TaskDraft) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetPublicTask(ctx context.Context, taskID string) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) (*model.Task, error)
	ListComments(ctx context.Context, taskID string) ([]*model.Comment, error)
	CreateComment(ctx context.Context, author *model.UserIdentity, taskID string, draft form.CommentDraft) (*model.Comment, error)
	DeleteComment(ctx context.Context, userID, taskID, commentID string) (*model.Comment, error)
}

// PageHandler はサーバー描画ページとフォーム送信のHTTPハンドラー。
//
// GETは毎回ストアから読み直して描画する。
// フォーム送信はページを読み込んだうえで書き込みを行い、
// 成功した場合のみ読み込み済みの一覧へ反映して描画する（再取得しない）。
type PageHandler struct {
	controller *page.Controller
	tasks      TaskServiceInterface
	renderer   *Renderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(controller *page.Controller, tasks TaskServiceInterface, renderer *Renderer) *PageHandler {
	return &PageHandler{
		controller: controller,
		tasks:      tasks,
		renderer:   renderer,
	}
}

// Home はトップページを描画する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	viewer := h.controller.Viewer(r)
	render(h.renderer, w, r, http.StatusOK, pageHome, viewer, struct{}{})
}

// Dashboard は自分のタスク一覧を描画する。未ログインならトップへリダイレクトする。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	render(h.renderer, w, r, http.StatusOK, pageDashboard, d.View.Viewer, d.View)
}

// CreateTask はタスク作成フォームを処理する。
// POST /dashboard/tasks
func (h *PageHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}

	draft := form.TaskDraft{
		Text:     r.PostFormValue("text"),
		IsPublic: form.ParseCheckbox(r.PostFormValue("is_public")),
	}
	created, err := h.tasks.CreateTask(r.Context(), d.View.Viewer.ID, draft)
	res := form.FromError(created, err)
	logResult(r, "create task", res)

	if res.IsOk() {
		// 一覧は作成日時の降順
		d.View.Tasks = append([]*model.Task{res.Value}, d.View.Tasks...)
	}
	render(h.renderer, w, r, http.StatusOK, pageDashboard, d.View.Viewer, d.View)
}

// DeleteTask はタスク削除フォームを処理する。
// POST /dashboard/tasks/{id}/delete
func (h *PageHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}

	taskID := chi.URLParam(r, "id")
	deleted, err := h.tasks.DeleteTask(r.Context(), d.View.Viewer.ID, taskID)
	res := form.FromError(deleted, err)
	logResult(r, "delete task", res)

	if res.IsOk() {
		d.View.Tasks = removeTask(d.View.Tasks, taskID)
	}
	render(h.renderer, w, r, http.StatusOK, pageDashboard, d.View.Viewer, d.View)
}

// TaskDetail は公開タスクの詳細とコメント一覧を描画する。
// タスクが存在しない、または非公開の場合はトップへリダイレクトする。
// GET /task/{id}
func (h *PageHandler) TaskDetail(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadTaskDetail(w, r)
	if !ok {
		return
	}
	render(h.renderer, w, r, http.StatusOK, pageTask, d.View.Viewer, d.View)
}

// CreateComment はコメント投稿フォームを処理する。
// 本文が空の場合は何も書き込まずにそのまま描画する。
// POST /task/{id}/comments
func (h *PageHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadTaskDetail(w, r)
	if !ok {
		return
	}

	draft := form.CommentDraft{Text: r.PostFormValue("text")}
	created, err := h.tasks.CreateComment(r.Context(), d.View.Viewer, d.View.Task.ID, draft)
	res := form.FromError(created, err)
	logResult(r, "create comment", res)

	if res.IsOk() {
		d.View.Comments.Append(res.Value)
	}
	render(h.renderer, w, r, http.StatusOK, pageTask, d.View.Viewer, d.View)
}

// DeleteComment はコメント削除フォームを処理する。
// POST /task/{id}/comments/{commentID}/delete
func (h *PageHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadTaskDetail(w, r)
	if !ok {
		return
	}

	commentID := chi.URLParam(r, "commentID")
	res := form.Fail[*model.Comment](form.ErrorKindUnauthenticated, model.NewUnauthorizedError())
	if d.View.Viewer != nil {
		deleted, err := h.tasks.DeleteComment(r.Context(), d.View.Viewer.ID, d.View.Task.ID, commentID)
		res = form.FromError(deleted, err)
	}
	logResult(r, "delete comment", res)

	if res.IsOk() {
		d.View.Comments.Remove(commentID)
	}
	render(h.renderer, w, r, http.StatusOK, pageTask, d.View.Viewer, d.View)
}

// loadDashboard はダッシュボードの認可フローを実行する。
// リダイレクトまたはエラーページを書き込んだ場合はfalseを返す。
func (h *PageHandler) loadDashboard(w http.ResponseWriter, r *http.Request) (page.Decision[page.DashboardView], bool) {
	d, err := h.controller.Dashboard(r)
	return d, h.handleDecision(w, r, d, err)
}

// loadTaskDetail はタスク詳細の認可フローを実行する。
func (h *PageHandler) loadTaskDetail(w http.ResponseWriter, r *http.Request) (page.Decision[page.TaskDetailView], bool) {
	d, err := h.controller.TaskDetail(r, chi.URLParam(r, "id"))
	return d, h.handleDecision(w, r, d, err)
}

func (h *PageHandler) handleDecision(w http.ResponseWriter, r *http.Request, d interface{ ShouldRedirect() bool }, err error) bool {
	if err != nil {
		slog.Error("failed to load page",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		h.renderer.renderError(w, r, h.controller.Viewer(r))
		return false
	}
	if d.ShouldRedirect() {
		redirectHome(w, r)
		return false
	}
	return true
}

// redirectHome はトップへリダイレクトする。
// GETは307、フォーム送信はブラウザがGETで辿れるよう303を使う。
func redirectHome(w http.ResponseWriter, r *http.Request) {
	status := http.StatusTemporaryRedirect
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, page.RedirectPath, status)
}

// logResult はフォーム送信の失敗を分類に応じたレベルで記録する。
func logResult[T any](r *http.Request, action string, res form.Result[T]) {
	if res.IsOk() {
		return
	}

	attrs := []any{
		slog.String("action", action),
		slog.String("path", r.URL.Path),
		slog.String("kind", string(res.Kind)),
		slog.String("error", res.Err.Error()),
	}
	switch res.Kind {
	case form.ErrorKindValidation:
		slog.Debug("form submit ignored", attrs...)
	case form.ErrorKindStore:
		slog.Error("form submit failed", attrs...)
	default:
		slog.Warn("form submit rejected", attrs...)
	}
}

func removeTask(tasks []*model.Task, id string) []*model.Task {
	out := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
