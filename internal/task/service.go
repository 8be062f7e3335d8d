// Package task はタスクとコメントのドメインロジックを提供する。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// Service はタスク・コメントのサービス層。
// 所有者・投稿者チェックを担い、永続化はリポジトリに委ねる。
// 本文は入力されたまま保存し、エスケープは描画側が行う。
type Service struct {
	taskRepo    repository.TaskRepository
	commentRepo repository.CommentRepository
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	taskRepo repository.TaskRepository,
	commentRepo repository.CommentRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		taskRepo:    taskRepo,
		commentRepo: commentRepo,
		metrics:     collector,
	}
}

// CreateTask はタスクを作成する。本文が空の場合はEmptyTextエラーを返し、何も書き込まない。
func (s *Service) CreateTask(ctx context.Context, ownerID string, draft form.TaskDraft) (*model.Task, error) {
	if ownerID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if draft.IsEmpty() {
		return nil, model.NewEmptyTextError()
	}

	t := &model.Task{
		Text:     draft.Text,
		IsPublic: draft.IsPublic,
		OwnerID:  ownerID,
	}
	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	s.metrics.RecordTaskCreated()
	slog.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("owner_id", ownerID),
		slog.Bool("is_public", t.IsPublic),
	)
	return t, nil
}

// ListTasks は所有者のタスク一覧を新しい順に返す。
func (s *Service) ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// GetTask はタスクを取得する。見つからない場合はnilを返す。公開状態は判定しない。
func (s *Service) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	t, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	return t, nil
}

// GetPublicTask は公開タスクを取得する。
// 存在しない場合と非公開の場合は区別せずTaskNotFoundエラーを返す。
func (s *Service) GetPublicTask(ctx context.Context, taskID string) (*model.Task, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.IsPublic {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return t, nil
}

// DeleteTask は所有者本人のタスクを削除する。コメントは削除しない。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if t.OwnerID != userID {
		return nil, model.NewForbiddenError()
	}

	if err := s.taskRepo.DeleteByID(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewTaskNotFoundError(taskID)
		}
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}

	s.metrics.RecordTaskDeleted()
	slog.Info("task deleted",
		slog.String("task_id", taskID),
		slog.String("owner_id", userID),
	)
	return t, nil
}

// ListComments はタスクに付いたコメントを投稿順に返す。
func (s *Service) ListComments(ctx context.Context, taskID string) ([]*model.Comment, error) {
	comments, err := s.commentRepo.ListByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// CreateComment は公開タスクにコメントを投稿する。
// 未ログインの場合はUnauthorized、本文が空の場合はEmptyText、
// タスクが存在しないか非公開の場合はTaskNotFoundを返し、何も書き込まない。
func (s *Service) CreateComment(ctx context.Context, author *model.UserIdentity, taskID string, draft form.CommentDraft) (*model.Comment, error) {
	if author == nil || author.ID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if draft.IsEmpty() {
		return nil, model.NewEmptyTextError()
	}

	if _, err := s.GetPublicTask(ctx, taskID); err != nil {
		return nil, err
	}

	c := &model.Comment{
		TaskID:     taskID,
		Text:       draft.Text,
		AuthorID:   author.ID,
		AuthorName: displayName(author),
	}
	if err := s.commentRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}

	s.metrics.RecordCommentCreated()
	slog.Info("comment created",
		slog.String("comment_id", c.ID),
		slog.String("task_id", taskID),
		slog.String("author_id", author.ID),
	)
	return c, nil
}

// DeleteComment は投稿者本人のコメントを削除する。
// taskIDが空でない場合、コメントがそのタスクに属していなければCommentNotFoundを返す。
func (s *Service) DeleteComment(ctx context.Context, userID, taskID, commentID string) (*model.Comment, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	c, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil || (taskID != "" && c.TaskID != taskID) {
		return nil, model.NewCommentNotFoundError(commentID)
	}
	if c.AuthorID != userID {
		return nil, model.NewForbiddenError()
	}

	if err := s.commentRepo.DeleteByID(ctx, commentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewCommentNotFoundError(commentID)
		}
		return nil, fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	s.metrics.RecordCommentDeleted()
	slog.Info("comment deleted",
		slog.String("comment_id", commentID),
		slog.String("task_id", c.TaskID),
	)
	return c, nil
}

// displayName はコメントに表示する投稿者名。名前がなければメールアドレスを使う。
func displayName(u *model.UserIdentity) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
