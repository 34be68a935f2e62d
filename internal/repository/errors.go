package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate は一意制約違反を示す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenceNotFound は外部キーの参照先が存在しないことを示す。
	ErrReferenceNotFound = errors.New("referenced record not found")
)

// PostgreSQLのエラーコード
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// classifyPQError はlib/pqのエラーをリポジトリのセンチネルエラーに変換する。
// 該当しないエラーはnilを返す。
func classifyPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch string(pqErr.Code) {
	case pgUniqueViolation:
		return ErrDuplicate
	case pgForeignKeyViolation:
		return ErrReferenceNotFound
	}
	return nil
}
