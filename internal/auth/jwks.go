package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// maxKeySetSize はJWKSレスポンスの最大サイズ（1MB）。
	maxKeySetSize = 1 << 20
	// defaultFetchTimeout はFetchTimeout未指定時のJWKS取得のタイムアウト。
	defaultFetchTimeout = 10 * time.Second
)

// KeyResolver はkidから検証用の公開鍵を解決する。
type KeyResolver interface {
	SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWKSConfig はJWKSClientの設定。
type JWKSConfig struct {
	URL string
	// CacheTTL は取得した鍵セットの保持期間。0以下ならキャッシュせず、検証ごとに取得する。
	CacheTTL time.Duration
	// RequestsPerMinute は有効なキャッシュにないkidによる再取得の上限。0以下なら制限しない。
	// 期限切れによる再取得とキャッシュ無効時の取得には適用しない。
	RequestsPerMinute int
	// FetchTimeout は1回のJWKS取得のタイムアウト。0以下ならdefaultFetchTimeout。
	FetchTimeout time.Duration
}

// JWKSClient はIdPのJWKSエンドポイントから署名鍵を取得するKeyResolver。
//
// 取得した鍵セットはCacheTTLの間保持し、キャッシュにないkidを要求されたときは
// 再取得する（鍵ローテーション対応）。同時に発生したキャッシュミスは
// 1回の取得にまとめる。
type JWKSClient struct {
	url          string
	httpClient   *http.Client
	observer     Observer
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	limiter      *rate.Limiter
	now          func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time

	group singleflight.Group
}

// NewJWKSClient はJWKSClientを生成する。observerがnilの場合はNopObserverを使う。
func NewJWKSClient(cfg JWKSConfig, httpClient *http.Client, observer Observer) *JWKSClient {
	if observer == nil {
		observer = NopObserver{}
	}
	c := &JWKSClient{
		url:          cfg.URL,
		httpClient:   httpClient,
		observer:     observer,
		cacheTTL:     cfg.CacheTTL,
		fetchTimeout: cfg.FetchTimeout,
		now:          time.Now,
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = defaultFetchTimeout
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return c
}

// SigningKey はkidに対応する公開鍵を返す。
// 取得は呼び出し元のキャンセルから切り離して行い、呼び出し元はctxが終わった時点で待つのをやめる。
func (c *JWKSClient) SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty key id", ErrKeyLookup)
	}

	if key, _ := c.cached(kid); key != nil {
		return key, nil
	}

	ch := c.group.DoChan(kid, func() (any, error) {
		return c.resolve(context.WithoutCancel(ctx), kid)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeyLookup, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rsa.PublicKey), nil
	}
}

func (c *JWKSClient) resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	// 待っている間に別のgoroutineが取得を終えている場合がある
	key, fresh := c.cached(kid)
	if key != nil {
		return key, nil
	}

	// 有効な鍵セットにないkidはローテーションの可能性として再取得する。
	// 任意のkidで引き起こせるため、この経路だけ回数を制限する。
	if fresh && c.limiter != nil && !c.limiter.Allow() {
		return nil, fmt.Errorf("%w: jwks refetch rate limit exceeded for kid %q", ErrKeyLookup, kid)
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	keys, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: no signing key with kid %q", ErrKeyLookup, kid)
	}
	return key, nil
}

// cached はキャッシュ済みの鍵と、有効期限内の鍵セットを保持しているかを返す。
func (c *JWKSClient) cached(kid string) (*rsa.PublicKey, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || !c.now().Before(c.expiresAt) {
		return nil, false
	}
	return c.keys[kid], true
}

// refresh はJWKSを取得してキャッシュを置き換える。
func (c *JWKSClient) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	start := time.Now()
	keys, err := c.fetch(ctx)
	c.observer.KeySetFetched(ctx, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if c.cacheTTL > 0 {
		c.mu.Lock()
		c.keys = keys
		c.expiresAt = c.now().Add(c.cacheTTL)
		c.mu.Unlock()
	}
	return keys, nil
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create jwks request: %w", ErrKeyLookup, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch jwks: %w", ErrKeyLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: jwks endpoint returned status %d", ErrKeyLookup, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read jwks: %w", ErrKeyLookup, err)
	}

	keys, skipped, err := ParseKeySet(body)
	for _, skipErr := range skipped {
		slog.WarnContext(ctx, "jwks entry skipped",
			slog.String("url", c.url),
			slog.String("error", skipErr.Error()),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyLookup, err)
	}
	return keys, nil
}

// ParseKeySet はJWKSドキュメントから署名用RSA公開鍵をkid別に取り出す。
//
// RSA以外の鍵や署名用でない鍵は黙って読み飛ばす。解析できないエントリは
// 読み飛ばしてskippedで理由を返す。利用できる鍵が1つもなければエラーを返す。
func ParseKeySet(data []byte) (keys map[string]*rsa.PublicKey, skipped []error, err error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys = make(map[string]*rsa.PublicKey, len(doc.Keys))
	for i, raw := range doc.Keys {
		key, err := jwk.ParseKey(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("jwks entry %d: %w", i, err))
			continue
		}
		if key.KeyID() == "" || key.KeyType() != jwa.RSA {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}

		pub, err := rsaPublicKey(key)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("jwks key %q: %w", key.KeyID(), err))
			continue
		}
		keys[key.KeyID()] = pub
	}

	if len(keys) == 0 {
		return nil, skipped, errors.New("jwks contains no usable signing keys")
	}
	return keys, skipped, nil
}

// rsaPublicKey はJWKから検証用の公開鍵を取り出す。秘密鍵を含むJWKは受け付けない。
func rsaPublicKey(key jwk.Key) (*rsa.PublicKey, error) {
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("export key: %w", err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected RSA public key, got %T", raw)
	}
	return pub, nil
}

var _ KeyResolver = (*JWKSClient)(nil)
