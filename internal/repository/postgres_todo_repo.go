package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/todogql/internal/model"
)

const todoColumns = `id, title, status, user_id, created_at, updated_at`

// PostgresTodoRepo はPostgreSQLを使用したTODOリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(s rowScanner) (*model.Todo, error) {
	todo := &model.Todo{}
	var status string
	if err := s.Scan(&todo.ID, &todo.Title, &status, &todo.UserID, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
		return nil, err
	}
	todo.Status = model.TodoStatus(status)
	return todo, nil
}

// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id int64) (*model.Todo, error) {
	todo, err := scanTodo(r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo by ID: %w", err)
	}
	return todo, nil
}

// ListByUserID はユーザーのTODO一覧をcreated_at降順で返す。
func (r *PostgresTodoRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]*model.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	return todos, nil
}

// Create はTODOを作成する。所有ユーザーが存在しない場合はErrReferenceNotFoundを返す。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (title, status, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		todo.Title, string(todo.Status), todo.UserID,
	).Scan(&todo.ID, &todo.CreatedAt, &todo.UpdatedAt)
	if sentinel := classifyPQError(err); sentinel != nil {
		return fmt.Errorf("failed to insert todo: %w", sentinel)
	}
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	return nil
}

// Update はTODOを部分更新する。COALESCEによりNULLパラメータのカラムは既存値を維持する。
func (r *PostgresTodoRepo) Update(ctx context.Context, id int64, update model.TodoUpdate) (*model.Todo, error) {
	var title, status sql.NullString
	if update.Title != nil {
		title = sql.NullString{String: *update.Title, Valid: true}
	}
	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}

	todo, err := scanTodo(r.db.QueryRowContext(ctx,
		`UPDATE todos
		 SET title = COALESCE($2, title),
		     status = COALESCE($3, status),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+todoColumns,
		id, title, status,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return todo, nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
