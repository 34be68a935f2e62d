package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContextBuilder はAuthorizationヘッダーからIdentityを導出する。
//
// Buildは失敗を返さない。ヘッダー不正、鍵解決失敗、トークン不正、
// ユーザー情報の取得失敗や形の不一致はすべて匿名Identityになり、
// 理由はObserverにだけ通知される。
type ContextBuilder struct {
	verifier TokenVerifier
	fetcher  IdentityFetcher
	observer Observer
	timeout  time.Duration
}

// NewContextBuilder はContextBuilderを生成する。
// timeoutはトークン検証とユーザー情報取得を合わせた上限で、0以下なら設定しない。
func NewContextBuilder(verifier TokenVerifier, fetcher IdentityFetcher, observer Observer, timeout time.Duration) *ContextBuilder {
	if observer == nil {
		observer = NopObserver{}
	}
	return &ContextBuilder{
		verifier: verifier,
		fetcher:  fetcher,
		observer: observer,
		timeout:  timeout,
	}
}

// Build はリクエスト1件分のIdentityを返す。
func (b *ContextBuilder) Build(ctx context.Context, authorization string) Identity {
	start := time.Now()
	identity, outcome, err := b.resolve(ctx, authorization)
	b.observer.IdentityResolved(ctx, outcome, time.Since(start), err)
	return identity
}

func (b *ContextBuilder) resolve(ctx context.Context, authorization string) (Identity, Outcome, error) {
	if strings.TrimSpace(authorization) == "" {
		return Anonymous(), OutcomeNoToken, nil
	}

	token, err := ParseBearer(authorization)
	if err != nil {
		return Anonymous(), OutcomeMalformedHeader, err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	claims, err := b.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrKeyLookup) {
			return Anonymous(), OutcomeKeyLookupFailed, err
		}
		return Anonymous(), OutcomeTokenInvalid, err
	}

	info, err := b.fetcher.FetchUserInfo(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserInfoShape) {
			return Anonymous(), OutcomeUserInfoShapeInvalid, err
		}
		return Anonymous(), OutcomeUserInfoFailed, err
	}

	return Authenticated(IdentityUser{
		ID:    claims.Subject,
		Name:  info.Nickname,
		Email: info.Email,
	}), OutcomeAuthenticated, nil
}

// ParseBearer は "Bearer <token>" 形式のヘッダーからトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func ParseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrMalformedHeader)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformedHeader)
	}
	if strings.ContainsAny(token, " \t") {
		return "", fmt.Errorf("%w: token contains whitespace", ErrMalformedHeader)
	}
	return token, nil
}
