// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/todogql/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。CreatedAt/UpdatedAtはDB側の値で上書きされる。
	Create(ctx context.Context, user *model.User) error
}

// TodoRepository はTODOデータの永続化インターフェース。
type TodoRepository interface {
	// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Todo, error)

	// ListByUserID はユーザーのTODO一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error)

	// Create はTODOを作成する。ID、CreatedAt、UpdatedAtはDB側で採番された値で上書きされる。
	Create(ctx context.Context, todo *model.Todo) error

	// Update はTODOを部分更新し、更新後のTODOを返す。
	// nilフィールドは変更せず、既存の値を維持する。見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, update model.TodoUpdate) (*model.Todo, error)
}
