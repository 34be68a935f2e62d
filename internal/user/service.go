// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/todogql/internal/auth"
	"github.com/hitoshi/todogql/internal/model"
	"github.com/hitoshi/todogql/internal/repository"
	"github.com/hitoshi/todogql/internal/security"
)

// Service はユーザー管理のサービス層。
// IdPで認証済みのユーザーをアプリケーションのユーザーとして登録・参照する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// CreateUser は認証済みユーザーを登録する。
// IDはトークンのsub、メールアドレスはユーザー情報エンドポイントの値を使う。
// nameはサニタイズ後に空ならnullとして保存する。
func (s *Service) CreateUser(ctx context.Context, identity auth.Identity, name *string) (*model.User, error) {
	principal, ok := identity.User()
	if !ok {
		return nil, model.NewAuthenticationRequiredError()
	}

	existing, err := s.userRepo.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserAlreadyExistsError()
	}

	user := &model.User{
		ID:    principal.ID,
		Email: principal.Email,
		Name:  s.sanitizeName(name),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時に登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUserAlreadyExistsError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Me は認証済みユーザー自身の登録情報を返す。未登録の場合はnilを返す。
func (s *Service) Me(ctx context.Context, identity auth.Identity) (*model.User, error) {
	userID := identity.UserID()
	if userID == "" {
		return nil, model.NewAuthenticationRequiredError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを返す。見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) sanitizeName(name *string) *string {
	if name == nil {
		return nil
	}
	cleaned := s.sanitizer.SanitizeText(*name)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
