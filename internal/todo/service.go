// Package todo はTODO管理のドメインロジックを提供する。
package todo

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/todogql/internal/auth"
	"github.com/hitoshi/todogql/internal/model"
	"github.com/hitoshi/todogql/internal/repository"
	"github.com/hitoshi/todogql/internal/security"
)

// MaxTitleLength はTODOタイトルの最大文字数。
const MaxTitleLength = 200

// Service はTODO管理のサービス層。
// すべての操作は認証済みユーザー本人のTODOに限定される。
type Service struct {
	todoRepo  repository.TodoRepository
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	todoRepo repository.TodoRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		todoRepo:  todoRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// AddTodo はTODOを作成する。状態はpendingで始まる。
func (s *Service) AddTodo(ctx context.Context, identity auth.Identity, title string) (*model.Todo, error) {
	userID := identity.UserID()
	if userID == "" {
		return nil, model.NewAuthenticationRequiredError()
	}

	cleaned, apiErr := s.validateTitle(title)
	if apiErr != nil {
		return nil, apiErr
	}

	owner, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	todo := &model.Todo{
		Title:  cleaned,
		Status: model.TodoStatusPending,
		UserID: userID,
	}
	if err := s.todoRepo.Create(ctx, todo); err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("TODOの作成に失敗しました: %w", err)
	}

	return todo, nil
}

// UpdateTodo はTODOを部分更新する。nilのフィールドは変更しない。
// 他ユーザーのTODOはFORBIDDENになる。
func (s *Service) UpdateTodo(ctx context.Context, identity auth.Identity, id int64, update model.TodoUpdate) (*model.Todo, error) {
	userID := identity.UserID()
	if userID == "" {
		return nil, model.NewAuthenticationRequiredError()
	}

	target, err := s.todoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("TODOの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewTodoNotFoundError(id)
	}
	if target.UserID != userID {
		return nil, model.NewForbiddenError()
	}

	var cleaned model.TodoUpdate
	if update.Title != nil {
		title, apiErr := s.validateTitle(*update.Title)
		if apiErr != nil {
			return nil, apiErr
		}
		cleaned.Title = &title
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, model.NewInvalidInputError(fmt.Sprintf("unknown status %q", *update.Status))
		}
		status := *update.Status
		cleaned.Status = &status
	}

	// 変更がなければ書き込まずに現在の値を返す
	if cleaned.Title == nil && cleaned.Status == nil {
		return target, nil
	}

	updated, err := s.todoRepo.Update(ctx, id, cleaned)
	if err != nil {
		return nil, fmt.Errorf("TODOの更新に失敗しました: %w", err)
	}
	if updated == nil {
		// 取得後に削除された場合
		return nil, model.NewTodoNotFoundError(id)
	}
	return updated, nil
}

// ListTodos は認証済みユーザーのTODOを新しい順に返す。
func (s *Service) ListTodos(ctx context.Context, identity auth.Identity) ([]*model.Todo, error) {
	userID := identity.UserID()
	if userID == "" {
		return nil, model.NewAuthenticationRequiredError()
	}
	return s.ListByUserID(ctx, userID)
}

// ListByUserID は指定ユーザーのTODOを新しい順に返す。
// User.todosフィールドの解決に使う。
func (s *Service) ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error) {
	todos, err := s.todoRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("TODO一覧の取得に失敗しました: %w", err)
	}
	if todos == nil {
		todos = []*model.Todo{}
	}
	return todos, nil
}

// GetTodo は認証済みユーザーのTODOを1件返す。
// 他ユーザーのTODOは存在を明かさないためTODO_NOT_FOUNDとして扱う。
func (s *Service) GetTodo(ctx context.Context, identity auth.Identity, id int64) (*model.Todo, error) {
	userID := identity.UserID()
	if userID == "" {
		return nil, model.NewAuthenticationRequiredError()
	}

	todo, err := s.todoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("TODOの取得に失敗しました: %w", err)
	}
	if todo == nil || todo.UserID != userID {
		return nil, model.NewTodoNotFoundError(id)
	}
	return todo, nil
}

func (s *Service) validateTitle(title string) (string, *model.APIError) {
	cleaned := s.sanitizer.SanitizeText(title)
	if cleaned == "" {
		return "", model.NewInvalidInputError("title must not be empty")
	}
	if len([]rune(cleaned)) > MaxTitleLength {
		return "", model.NewInvalidInputError(fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	return cleaned, nil
}
