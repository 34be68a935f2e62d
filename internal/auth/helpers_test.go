package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKid      = "test-kid-1"
	testAudience = "https://api.example.com"
	testSubject  = "auth0|123456"
)

var (
	testKey  = mustGenerateKey()
	otherKey = mustGenerateKey()
)

func mustGenerateKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

// jwksJSON はkid→公開鍵の組からJWKSドキュメントを作る。
func jwksJSON(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()
	entries := make([]map[string]string, 0, len(keys))
	for kid, pub := range keys {
		entries = append(entries, jwkEntry(kid, pub))
	}
	data, err := json.Marshal(map[string]any{"keys": entries})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return data
}

// jwkEntry は公開鍵1つ分のJWKを作る。
func jwkEntry(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kid": kid,
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func validClaims(issuer string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": testSubject,
		"aud": testAudience,
		"iss": issuer,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func mintToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// fakeIdP はJWKSとユーザー情報エンドポイントを提供するテスト用IdP。
type fakeIdP struct {
	server       *httptest.Server
	jwksHits     atomic.Int32
	userInfoHits atomic.Int32

	mu             sync.Mutex
	jwks           []byte
	userInfoStatus int
	userInfoBody   string
	lastAuthHeader string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{
		userInfoStatus: http.StatusOK,
		userInfoBody:   `{"sub":"auth0|123456","nickname":"alice","email":"alice@example.com","picture":"https://example.com/a.png"}`,
	}
	idp.jwks = jwksJSON(t, map[string]*rsa.PublicKey{testKid: &testKey.PublicKey})

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		idp.jwksHits.Add(1)
		idp.mu.Lock()
		body := idp.jwks
		idp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		idp.userInfoHits.Add(1)
		idp.mu.Lock()
		idp.lastAuthHeader = r.Header.Get("Authorization")
		status, body := idp.userInfoStatus, idp.userInfoBody
		idp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIdP) issuer() string      { return f.server.URL + "/" }
func (f *fakeIdP) jwksURL() string     { return f.server.URL + "/.well-known/jwks.json" }
func (f *fakeIdP) userInfoURL() string { return f.server.URL + "/userinfo" }

func (f *fakeIdP) authHeader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuthHeader
}

func (f *fakeIdP) setJWKS(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwks = data
}

func (f *fakeIdP) setUserInfo(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInfoStatus = status
	f.userInfoBody = body
}

// recordingObserver はイベントを記録するObserver。
type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []Outcome
	errs      []error
	fetches   int
	fetchErrs []error
}

func (o *recordingObserver) IdentityResolved(_ context.Context, outcome Outcome, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) KeySetFetched(_ context.Context, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches++
	if err != nil {
		o.fetchErrs = append(o.fetchErrs, err)
	}
}

func (o *recordingObserver) lastOutcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.outcomes) == 0 {
		return ""
	}
	return o.outcomes[len(o.outcomes)-1]
}
