// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/todogql/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証コンテキストを格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityBuilder はAuthorizationヘッダーから認証コンテキストを導出する。
// auth.ContextBuilderの抽象。
type IdentityBuilder interface {
	Build(ctx context.Context, authorization string) auth.Identity
}

// NewIdentityMiddleware はAuthorizationヘッダーから認証コンテキストを導出し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 導出に失敗したリクエストも匿名として後段に渡し、ここでは拒否しない。
// 認証の要否はGraphQLのリゾルバ側で判断する。
func NewIdentityMiddleware(builder IdentityBuilder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := builder.Build(r.Context(), r.Header.Get("Authorization"))
			if identity.IsAuthenticated() {
				setLoggedUserID(r.Context(), identity.UserID())
			}
			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから認証コンテキストを取得する。
// 注入されていない場合は匿名を返す。
func IdentityFromContext(ctx context.Context) auth.Identity {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	if !ok {
		return auth.Anonymous()
	}
	return identity
}

// ContextWithIdentity はコンテキストに認証コンテキストを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext は認証済みユーザーのIDを取得する。
// 匿名の場合はエラーを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID := IdentityFromContext(ctx).UserID()
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
