package graphql

import (
	"context"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"github.com/hitoshi/todogql/internal/model"
)

// UserResolver はUser型のリゾルバー。
type UserResolver struct {
	root *Resolver
	user *model.User
}

func (r *Resolver) newUserResolver(user *model.User) *UserResolver {
	return &UserResolver{root: r, user: user}
}

func (u *UserResolver) ID() graphqlgo.ID {
	return graphqlgo.ID(u.user.ID)
}

func (u *UserResolver) Name() *string {
	return u.user.Name
}

func (u *UserResolver) Email() string {
	return u.user.Email
}

func (u *UserResolver) CreatedAt() Date {
	return NewDate(u.user.CreatedAt)
}

// Todos はユーザーのTODOを新しい順に返す。
func (u *UserResolver) Todos(ctx context.Context) ([]*TodoResolver, error) {
	todos, err := u.root.todos.ListByUserID(ctx, u.user.ID)
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return u.root.newTodoResolvers(todos), nil
}

// TodoResolver はTodo型のリゾルバー。
type TodoResolver struct {
	root *Resolver
	todo *model.Todo
}

func (r *Resolver) newTodoResolver(todo *model.Todo) *TodoResolver {
	return &TodoResolver{root: r, todo: todo}
}

func (r *Resolver) newTodoResolvers(todos []*model.Todo) []*TodoResolver {
	out := make([]*TodoResolver, len(todos))
	for i, todo := range todos {
		out[i] = r.newTodoResolver(todo)
	}
	return out
}

func (t *TodoResolver) ID() int32 {
	return int32(t.todo.ID)
}

func (t *TodoResolver) Title() string {
	return t.todo.Title
}

func (t *TodoResolver) Status(ctx context.Context) (string, error) {
	v, err := statusEnum(t.todo.Status)
	if err != nil {
		return "", resolveError(ctx, err)
	}
	return v, nil
}

// User はTODOの所有ユーザーを返す。
func (t *TodoResolver) User(ctx context.Context) (*UserResolver, error) {
	user, err := t.root.users.FindByID(ctx, t.todo.UserID)
	if err != nil {
		return nil, resolveError(ctx, err)
	}
	return t.root.newUserResolver(user), nil
}

func (t *TodoResolver) CreatedAt() Date {
	return NewDate(t.todo.CreatedAt)
}

func (t *TodoResolver) UpdatedAt() Date {
	return NewDate(t.todo.UpdatedAt)
}
