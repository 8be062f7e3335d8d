package form

import (
	"errors"

	"github.com/hitoshi/taskboard/internal/model"
)

// ErrorKind は送信失敗の分類。
type ErrorKind string

const (
	ErrorKindValidation      ErrorKind = "validation"
	ErrorKindUnauthenticated ErrorKind = "unauthenticated"
	ErrorKindForbidden       ErrorKind = "forbidden"
	ErrorKindNotFound        ErrorKind = "not_found"
	ErrorKindStore           ErrorKind = "store"
)

// Result はフォーム送信の結果。成功時はValueに作成・削除した値を持つ。
type Result[T any] struct {
	Value T
	Kind  ErrorKind
	Err   error
}

// Ok は成功結果を返す。
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail は失敗結果を返す。
func Fail[T any](kind ErrorKind, err error) Result[T] {
	return Result[T]{Kind: kind, Err: err}
}

// IsOk は成功したかどうかを返す。
func (r Result[T]) IsOk() bool {
	return r.Kind == ""
}

// FromError はサービス層のエラーを失敗結果に変換する。errがnilなら成功結果を返す。
func FromError[T any](v T, err error) Result[T] {
	if err == nil {
		return Ok(v)
	}
	return Fail[T](KindOf(err), err)
}

// KindOf はエラーを送信失敗の分類に対応付ける。
// APIError以外はストア障害として扱う。
func KindOf(err error) ErrorKind {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return ErrorKindStore
	}
	switch apiErr.Code {
	case model.ErrCodeEmptyText, model.ErrCodeInvalidRequest:
		return ErrorKindValidation
	case model.ErrCodeUnauthorized:
		return ErrorKindUnauthenticated
	case model.ErrCodeForbidden:
		return ErrorKindForbidden
	case model.ErrCodeTaskNotFound, model.ErrCodeCommentNotFound:
		return ErrorKindNotFound
	default:
		return ErrorKindStore
	}
}
