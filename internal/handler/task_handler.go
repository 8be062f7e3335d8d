package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// TaskHandler はタスク・コメントのJSON APIハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Text     string `json:"text"`
	IsPublic bool   `json:"is_public"`
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	Text string `json:"text"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsPublic  bool      `json:"is_public"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListTasks は自分のタスク一覧を返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	tasks, err := h.service.ListTasks(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, model.NewInvalidRequestError())
		return
	}

	t, err := h.service.CreateTask(r.Context(), userID, form.TaskDraft{Text: req.Text, IsPublic: req.IsPublic})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// DeleteTask は自分のタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	if _, err := h.service.DeleteTask(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListComments は公開タスクのコメント一覧を返す。認証不要。
// 非公開・存在しないタスクはどちらも404とする。
// GET /api/tasks/{id}/comments
func (h *TaskHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetPublicTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	comments, err := h.service.ListComments(r.Context(), t.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateComment は公開タスクにコメントを投稿する。
// POST /api/tasks/{id}/comments
func (h *TaskHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, model.NewInvalidRequestError())
		return
	}

	c, err := h.service.CreateComment(r.Context(), user, chi.URLParam(r, "id"), form.CommentDraft{Text: req.Text})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// DeleteComment は自分のコメントを削除する。
// DELETE /api/comments/{id}
func (h *TaskHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	if _, err := h.service.DeleteComment(r.Context(), userID, "", chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Text:      t.Text,
		IsPublic:  t.IsPublic,
		OwnerID:   t.OwnerID,
		CreatedAt: t.CreatedAt,
	}
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		TaskID:     c.TaskID,
		Text:       c.Text,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		CreatedAt:  c.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	middleware.WriteJSON(w, status, v)
}
