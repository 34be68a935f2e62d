package auth

import (
	"errors"
	"fmt"
)

// 認証パイプラインのエラー分類。
// いずれもContextBuilderで捕捉され、匿名コンテキストに変換される。
var (
	// ErrMalformedHeader はAuthorizationヘッダーが "Bearer <token>" 形式でないことを示す。
	ErrMalformedHeader = errors.New("malformed authorization header")
	// ErrKeyLookup は署名鍵の取得に失敗したことを示す（未知のkid、JWKS取得失敗など）。
	ErrKeyLookup = errors.New("signing key lookup failed")
	// ErrTokenInvalid はトークンの検証に失敗したことを示す。
	// 署名、有効期限、audience、issuer、アルゴリズム、ペイロード形式の失敗を区別しない。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrUserInfo はユーザー情報エンドポイントの呼び出しに失敗したことを示す。
	ErrUserInfo = errors.New("user info fetch failed")
	// ErrUserInfoShape はユーザー情報のレスポンスが期待する形でないことを示す。
	ErrUserInfoShape = errors.New("user info shape invalid")
)

// ShapeError はユーザー情報レスポンスの構造検証エラー。
// errors.Is(err, ErrUserInfoShape) で判定できる。
type ShapeError struct {
	Field   string // 問題のあったフィールド。ペイロード全体の場合は空
	Problem string
}

// Error はerrorインターフェースを実装する。
func (e *ShapeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("user info shape invalid: %s", e.Problem)
	}
	return fmt.Sprintf("user info shape invalid: %s: %s", e.Field, e.Problem)
}

// Unwrap はErrUserInfoShapeを返す。
func (e *ShapeError) Unwrap() error {
	return ErrUserInfoShape
}
