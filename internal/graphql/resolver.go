package graphql

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/todogql/internal/auth"
	"github.com/hitoshi/todogql/internal/middleware"
	"github.com/hitoshi/todogql/internal/model"
)

// UserService はリゾルバーが必要とするユーザーサービスのインターフェース。
type UserService interface {
	CreateUser(ctx context.Context, identity auth.Identity, name *string) (*model.User, error)
	Me(ctx context.Context, identity auth.Identity) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TodoService はリゾルバーが必要とするTODOサービスのインターフェース。
type TodoService interface {
	AddTodo(ctx context.Context, identity auth.Identity, title string) (*model.Todo, error)
	UpdateTodo(ctx context.Context, identity auth.Identity, id int64, update model.TodoUpdate) (*model.Todo, error)
	ListTodos(ctx context.Context, identity auth.Identity) ([]*model.Todo, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error)
	GetTodo(ctx context.Context, identity auth.Identity, id int64) (*model.Todo, error)
}

// Resolver はQueryとMutationのルートリゾルバー。
// Identityはリクエストのcontextから取り出す。
type Resolver struct {
	users UserService
	todos TodoService
}

// NewResolver はResolverを生成する。
func NewResolver(users UserService, todos TodoService) *Resolver {
	return &Resolver{users: users, todos: todos}
}

// resolveError はサービス層のエラーをGraphQLのエラーに変換する。
// APIError以外は詳細をログに残してINTERNAL_ERRORにする。
func resolveError(ctx context.Context, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	slog.ErrorContext(ctx, "resolver failed",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(ctx)),
	)
	return model.NewInternalError()
}

// --- Query ---

// Me は認証済みユーザー自身を返す。未登録の場合はnull。
func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	user, err := r.users.Me(ctx, middleware.IdentityFromContext(ctx))
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	if user == nil {
		return nil, nil
	}
	return r.newUserResolver(user), nil
}

// Todos は認証済みユーザーのTODO一覧を返す。
func (r *Resolver) Todos(ctx context.Context) ([]*TodoResolver, error) {
	todos, err := r.todos.ListTodos(ctx, middleware.IdentityFromContext(ctx))
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return r.newTodoResolvers(todos), nil
}

// Todo は認証済みユーザーのTODOを1件返す。
func (r *Resolver) Todo(ctx context.Context, args struct{ ID int32 }) (*TodoResolver, error) {
	todo, err := r.todos.GetTodo(ctx, middleware.IdentityFromContext(ctx), int64(args.ID))
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return r.newTodoResolver(todo), nil
}

// --- Mutation ---

// CreateUserInput はcreateUserの入力。
type CreateUserInput struct {
	Name *string
}

// AddTodoInput はaddTodoの入力。
type AddTodoInput struct {
	Title string
}

// UpdateTodoInput はupdateTodoの入力。
type UpdateTodoInput struct {
	Title  *string
	Status *string
}

// CreateUser は認証済みユーザーを登録する。
func (r *Resolver) CreateUser(ctx context.Context, args struct{ Input *CreateUserInput }) (*UserResolver, error) {
	var name *string
	if args.Input != nil {
		name = args.Input.Name
	}
	user, err := r.users.CreateUser(ctx, middleware.IdentityFromContext(ctx), name)
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return r.newUserResolver(user), nil
}

// AddTodo はTODOを作成する。
func (r *Resolver) AddTodo(ctx context.Context, args struct{ Input *AddTodoInput }) (*TodoResolver, error) {
	var title string
	if args.Input != nil {
		title = args.Input.Title
	}
	todo, err := r.todos.AddTodo(ctx, middleware.IdentityFromContext(ctx), title)
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return r.newTodoResolver(todo), nil
}

// UpdateTodo はTODOを部分更新する。inputがnullなら何も変更しない。
func (r *Resolver) UpdateTodo(ctx context.Context, args struct {
	ID    int32
	Input *UpdateTodoInput
}) (*TodoResolver, error) {
	var update model.TodoUpdate
	if args.Input != nil {
		update.Title = args.Input.Title
		if args.Input.Status != nil {
			status, err := statusFromEnum(*args.Input.Status)
			if err != nil {
				return nil, resolveError(ctx, err)
			}
			update.Status = &status
		}
	}

	todo, err := r.todos.UpdateTodo(ctx, middleware.IdentityFromContext(ctx), int64(args.ID), update)
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return r.newTodoResolver(todo), nil
}
