package model

import "time"

// TodoStatus はTODOの進捗状態を表す。
type TodoStatus string

const (
	TodoStatusPending    TodoStatus = "pending"
	TodoStatusInProgress TodoStatus = "in_progress"
	TodoStatusDone       TodoStatus = "done"
)

// Valid は定義済みの状態かどうかを返す。
func (s TodoStatus) Valid() bool {
	switch s {
	case TodoStatusPending, TodoStatusInProgress, TodoStatusDone:
		return true
	default:
		return false
	}
}

// Todo はユーザーが所有するTODOを表す。
type Todo struct {
	ID        int64
	Title     string
	Status    TodoStatus
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TodoUpdate はTODOの部分更新内容を表す。
// nilのフィールドは変更しない。
type TodoUpdate struct {
	Title  *string
	Status *TodoStatus
}
