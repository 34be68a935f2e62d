package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/todogql/internal/auth"
	"github.com/hitoshi/todogql/internal/graphql"
	"github.com/hitoshi/todogql/internal/model"
	"github.com/hitoshi/todogql/internal/repository"
	"github.com/hitoshi/todogql/internal/security"
	"github.com/hitoshi/todogql/internal/todo"
	"github.com/hitoshi/todogql/internal/user"
)

const (
	integrationKid      = "integration-key"
	integrationAudience = "https://todo-api.example.com"
)

// --- インメモリリポジトリ ---

type memoryStore struct {
	mu     sync.Mutex
	users  map[string]*model.User
	todos  map[int64]*model.Todo
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]*model.User{}, todos: map[int64]*model.Todo{}}
}

type memoryUserRepo struct{ s *memoryStore }

func (r memoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r memoryUserRepo) Create(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return repository.ErrDuplicate
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	r.s.users[u.ID] = &copied
	return nil
}

type memoryTodoRepo struct{ s *memoryStore }

func (r memoryTodoRepo) FindByID(ctx context.Context, id int64) (*model.Todo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.todos[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (r memoryTodoRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Todo{}
	for _, t := range r.s.todos {
		if t.UserID == userID {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memoryTodoRepo) Create(ctx context.Context, t *model.Todo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[t.UserID]; !ok {
		return repository.ErrReferenceNotFound
	}
	r.s.nextID++
	t.ID = r.s.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	copied := *t
	r.s.todos[t.ID] = &copied
	return nil
}

func (r memoryTodoRepo) Update(ctx context.Context, id int64, update model.TodoUpdate) (*model.Todo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.todos[id]
	if !ok {
		return nil, nil
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	t.UpdatedAt = time.Now()
	copied := *t
	return &copied, nil
}

// --- IdP ---

type integrationIdP struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	users  map[string]string // access token -> userinfo JSON
	mu     sync.Mutex
}

func newIntegrationIdP(t *testing.T) *integrationIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	idp := &integrationIdP{key: key, users: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": integrationKid,
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		idp.mu.Lock()
		body, ok := idp.users[r.Header.Get("Authorization")]
		idp.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (p *integrationIdP) issuer() string { return p.server.URL + "/" }

// issue はsubに対するアクセストークンを発行し、userinfoの応答を登録する。
func (p *integrationIdP) issue(t *testing.T, sub, userInfoJSON string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": sub,
		"aud": integrationAudience,
		"iss": p.issuer(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = integrationKid
	signed, err := token.SignedString(p.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	p.mu.Lock()
	p.users["Bearer "+signed] = userInfoJSON
	p.mu.Unlock()
	return signed
}

func newIntegrationRouter(t *testing.T, idp *integrationIdP) http.Handler {
	t.Helper()
	client := idp.server.Client()
	keys := auth.NewJWKSClient(auth.JWKSConfig{
		URL:               idp.server.URL + "/.well-known/jwks.json",
		CacheTTL:          time.Minute,
		RequestsPerMinute: 10,
	}, client, nil)
	verifier := auth.NewVerifier(keys, auth.VerifierConfig{Audience: integrationAudience, Issuer: idp.issuer()})
	fetcher := auth.NewUserInfoClient(idp.server.URL+"/userinfo", client)
	builder := auth.NewContextBuilder(verifier, fetcher, nil, 5*time.Second)

	store := newMemoryStore()
	sanitizer := security.NewTextSanitizer()
	userSvc := user.NewService(memoryUserRepo{store}, sanitizer)
	todoSvc := todo.NewService(memoryTodoRepo{store}, memoryUserRepo{store}, sanitizer)
	schema := graphql.NewSchema(graphql.NewResolver(userSvc, todoSvc), 10, nil)

	return newTestRouter(t, &RouterDeps{
		IdentityBuilder: builder,
		GraphQLHandler:  graphql.NewHandler(schema),
	})
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, router http.Handler, token, query string) gqlResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp gqlResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func firstErrorCode(resp gqlResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	code, _ := resp.Errors[0].Extensions["code"].(string)
	return code
}

func TestIntegration_TodoLifecycle(t *testing.T) {
	idp := newIntegrationIdP(t)
	router := newIntegrationRouter(t, idp)

	alice := idp.issue(t, "auth0|alice", `{"nickname":"alice","email":"alice@example.com"}`)
	bob := idp.issue(t, "auth0|bob", `{"nickname":"bob","email":"bob@example.com"}`)

	// 匿名ではミューテーションできない
	resp := postGraphQL(t, router, "", `mutation { createUser(input: {name: "Alice"}) { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeAuthenticationRequired {
		t.Fatalf("anonymous createUser code = %q", code)
	}

	// 登録前のaddTodoはUSER_NOT_FOUND
	resp = postGraphQL(t, router, alice, `mutation { addTodo(input: {title: "buy milk"}) { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeUserNotFound {
		t.Fatalf("addTodo before registration code = %q", code)
	}

	resp = postGraphQL(t, router, alice, `mutation { createUser(input: {name: "<b>Alice</b>"}) { id name email } }`)
	if len(resp.Errors) > 0 {
		t.Fatalf("createUser errors: %+v", resp.Errors)
	}
	var created struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	json.Unmarshal(resp.Data["createUser"], &created)
	if created.ID != "auth0|alice" || created.Name != "Alice" || created.Email != "alice@example.com" {
		t.Errorf("createUser = %+v", created)
	}

	resp = postGraphQL(t, router, alice, `mutation { createUser { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeUserAlreadyExists {
		t.Errorf("second createUser code = %q", code)
	}

	resp = postGraphQL(t, router, alice, `mutation { addTodo(input: {title: "buy milk"}) { id status user { email } } }`)
	if len(resp.Errors) > 0 {
		t.Fatalf("addTodo errors: %+v", resp.Errors)
	}
	var added struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}
	json.Unmarshal(resp.Data["addTodo"], &added)
	if added.Status != "PENDING" {
		t.Errorf("status = %q, want PENDING", added.Status)
	}

	// 他ユーザーは更新できない
	postGraphQL(t, router, bob, `mutation { createUser { id } }`)
	resp = postGraphQL(t, router, bob, `mutation { updateTodo(id: 1, input: {status: DONE}) { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeForbidden {
		t.Errorf("bob updateTodo code = %q, want FORBIDDEN", code)
	}

	resp = postGraphQL(t, router, alice, `mutation { updateTodo(id: 1, input: {status: DONE}) { title status } }`)
	if len(resp.Errors) > 0 {
		t.Fatalf("updateTodo errors: %+v", resp.Errors)
	}
	var updated struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	json.Unmarshal(resp.Data["updateTodo"], &updated)
	if updated.Title != "buy milk" || updated.Status != "DONE" {
		t.Errorf("updateTodo = %+v", updated)
	}

	resp = postGraphQL(t, router, bob, `{ todos { id } }`)
	if string(resp.Data["todos"]) != "[]" {
		t.Errorf("bob todos = %s, want []", resp.Data["todos"])
	}
}

func TestIntegration_UserInfoShapeMismatch_IsAnonymous(t *testing.T) {
	idp := newIntegrationIdP(t)
	router := newIntegrationRouter(t, idp)

	token := idp.issue(t, "auth0|carol", `{"nickname":"carol"}`)

	resp := postGraphQL(t, router, token, `{ me { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeAuthenticationRequired {
		t.Errorf("code = %q, want AUTHENTICATION_REQUIRED", code)
	}
}

func TestIntegration_ForgedToken_IsAnonymous(t *testing.T) {
	idp := newIntegrationIdP(t)
	router := newIntegrationRouter(t, idp)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "auth0|mallory",
		"aud": integrationAudience,
		"iss": idp.issuer(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = integrationKid
	forged, err := token.SignedString(other)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp := postGraphQL(t, router, forged, `{ todos { id } }`)
	if code := firstErrorCode(resp); code != model.ErrCodeAuthenticationRequired {
		t.Errorf("code = %q, want AUTHENTICATION_REQUIRED", code)
	}
}
