package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxUserInfoSize はユーザー情報レスポンスの最大サイズ（1MB）。
const maxUserInfoSize = 1 << 20

// UserInfo はユーザー情報エンドポイントから得たプロフィール。
type UserInfo struct {
	Nickname string
	Email    string
}

// IdentityFetcher はアクセストークンからユーザー情報を取得する。
type IdentityFetcher interface {
	FetchUserInfo(ctx context.Context, token string) (*UserInfo, error)
}

// UserInfoClient はIdPの /userinfo を呼び出すIdentityFetcher。
type UserInfoClient struct {
	url        string
	httpClient *http.Client
}

// NewUserInfoClient はUserInfoClientを生成する。
func NewUserInfoClient(url string, httpClient *http.Client) *UserInfoClient {
	return &UserInfoClient{
		url:        url,
		httpClient: httpClient,
	}
}

// FetchUserInfo はユーザー情報を取得し、形を検証して返す。
// 通信・ステータス異常はErrUserInfo、形の不一致は*ShapeErrorを返す。
func (c *UserInfoClient) FetchUserInfo(ctx context.Context, token string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrUserInfo, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: userinfo endpoint returned status %d", ErrUserInfo, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUserInfo, err)
	}

	return ParseUserInfo(body)
}

// ParseUserInfo はレスポンスボディを検証してUserInfoに変換する。
// トップレベルはオブジェクトで、nicknameとemailが文字列であることを要求する。
// それ以外のフィールドは無視する。
func ParseUserInfo(body []byte) (*UserInfo, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ShapeError{Problem: "body is not valid JSON"}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &ShapeError{Problem: "expected object, got " + jsonTypeName(payload)}
	}

	nickname, err := requireString(obj, "nickname")
	if err != nil {
		return nil, err
	}
	email, err := requireString(obj, "email")
	if err != nil {
		return nil, err
	}

	return &UserInfo{Nickname: nickname, Email: email}, nil
}

func requireString(obj map[string]any, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", &ShapeError{Field: field, Problem: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ShapeError{Field: field, Problem: "expected string, got " + jsonTypeName(v)}
	}
	return s, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

var _ IdentityFetcher = (*UserInfoClient)(nil)
