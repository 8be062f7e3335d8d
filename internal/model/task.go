// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが作成するタスクを表す。
// 所有者は作成時に1人に決まり、以後移譲されない。
type Task struct {
	ID        string
	Text      string
	IsPublic  bool // trueの場合のみ所有者以外に公開する
	OwnerID   string
	CreatedAt time.Time
}

// Comment はタスクに付けられたコメントを表す。
// TaskIDに参照整合性制約はなく、タスク削除時にもコメントは残る。
type Comment struct {
	ID         string
	TaskID     string
	Text       string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
}

// UserIdentity はセッションから解決された現在のユーザーを表す。
type UserIdentity struct {
	ID    string
	Email string
	Name  string
}
