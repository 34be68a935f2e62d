package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SigningAlgorithm は受け付ける唯一の署名アルゴリズム。
const SigningAlgorithm = "RS256"

// Claims は検証済みトークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier はBearerトークンを検証してクレームを返す。
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// VerifierConfig はVerifierの設定。
type VerifierConfig struct {
	Audience string
	Issuer   string
}

// Verifier はRS256署名・audience・issuer・有効期限を検証するTokenVerifier。
type Verifier struct {
	keys   KeyResolver
	parser *jwt.Parser
}

// NewVerifier はVerifierを生成する。
func NewVerifier(keys KeyResolver, cfg VerifierConfig) *Verifier {
	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{SigningAlgorithm}),
			jwt.WithAudience(cfg.Audience),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークンを検証する。
// 鍵の解決に失敗した場合はErrKeyLookup、それ以外の失敗はErrTokenInvalidでラップして返す。
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token header has no kid", ErrTokenInvalid)
		}
		return v.keys.SigningKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeyLookup) {
			return nil, err
		}
		if errors.Is(err, ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}
	return claims, nil
}

var _ TokenVerifier = (*Verifier)(nil)
