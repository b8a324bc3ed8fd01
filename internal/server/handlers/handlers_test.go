package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/meetsync/internal/crypto"
	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/accounts"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/internal/server/storage/sqlite"
	"github.com/iudanet/meetsync/pkg/api"
)

const (
	adminPassword    = "admin-password"
	delegatePassword = "delegate-password"
)

var testJWT = JWTConfig{Secret: []byte("test-secret"), AccessTokenTTL: 15 * time.Minute}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store      *sqlite.Storage
	accounts   *accounts.Service
	delegateID int
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := accounts.New(setupTestLogger(), store, store, crypto.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32})
	require.NoError(t, svc.Seed(ctx, adminPassword))
	delegate, _, err := svc.CreateUser(ctx, accounts.NewUser{Username: "delegate", Password: delegatePassword})
	require.NoError(t, err)

	return &testEnv{store: store, accounts: svc, delegateID: delegate.ID}
}

func (e *testEnv) authHandler(guestEnabled bool) *AuthHandler {
	return NewAuthHandler(setupTestLogger(), e.accounts, e.store, e.store, testJWT, guestEnabled)
}

// withUser имитирует работу auth middleware
func withUser(r *http.Request, userID int, username, sessionID string) *http.Request {
	claims := &Claims{UserID: userID, Username: username}
	claims.ID = sessionID
	return r.WithContext(WithIdentity(r.Context(), claims))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

type publishedChange struct {
	change   *storage.Change
	changeID int64
}

type fakePublisher struct {
	published []publishedChange
	mu        sync.Mutex
}

func (p *fakePublisher) PublishChange(_ context.Context, changeID int64, change *storage.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedChange{changeID: changeID, change: change})
}

func TestTokens_RoundTrip(t *testing.T) {
	token, claims, err := GenerateAccessToken(testJWT, 7, "delegate")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := ValidateAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, 7, parsed.UserID)
	assert.Equal(t, "delegate", parsed.Username)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = ValidateAccessToken(JWTConfig{Secret: []byte("other")}, token)
	assert.Error(t, err)

	expired, _, err := GenerateAccessToken(JWTConfig{Secret: testJWT.Secret, AccessTokenTTL: -time.Minute}, 7, "delegate")
	require.NoError(t, err)
	_, err = ValidateAccessToken(testJWT, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthHandler_Login(t *testing.T) {
	env := setupEnv(t)
	handler := env.authHandler(true)

	req := httptest.NewRequest(http.MethodPost, "/apps/users/login/",
		jsonBody(t, api.LoginRequest{Username: "admin", Password: adminPassword}))
	w := httptest.NewRecorder()
	handler.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.ID())
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.True(t, resp.GuestEnabled)
	assert.Contains(t, resp.Permissions, models.PermSuperadmin)

	claims, err := ValidateAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	session, err := env.store.GetSession(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.UserID)
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	env := setupEnv(t)
	handler := env.authHandler(false)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "invalid username", body: `{"username":"a b","password":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "missing password", body: `{"username":"admin"}`, wantStatus: http.StatusBadRequest},
		{name: "wrong password", body: `{"username":"admin","password":"nope-nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown user", body: `{"username":"ghost","password":"whatever"}`, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/apps/users/login/", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.Login(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	env := setupEnv(t)
	handler := env.authHandler(false)
	ctx := context.Background()

	require.NoError(t, env.store.CreateSession(ctx, &models.Session{
		ID: "session-1", UserID: 1, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}))

	req := withUser(httptest.NewRequest(http.MethodPost, "/apps/users/logout/", nil), 1, "admin", "session-1")
	w := httptest.NewRecorder()
	handler.Logout(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := env.store.GetSession(ctx, "session-1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	w = httptest.NewRecorder()
	handler.Logout(w, httptest.NewRequest(http.MethodPost, "/apps/users/logout/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_WhoAmI(t *testing.T) {
	env := setupEnv(t)

	t.Run("anonymous with guests", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.authHandler(true).WhoAmI(w, httptest.NewRequest(http.MethodGet, "/apps/users/whoami/", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var whoami models.WhoAmI
		require.NoError(t, json.NewDecoder(w.Body).Decode(&whoami))
		assert.True(t, whoami.IsAnonymous())
		assert.True(t, whoami.GuestEnabled)
		assert.NotEmpty(t, whoami.Permissions)
	})

	t.Run("authenticated", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/apps/users/whoami/", nil), env.delegateID, "delegate", "s")
		w := httptest.NewRecorder()
		env.authHandler(false).WhoAmI(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var whoami models.WhoAmI
		require.NoError(t, json.NewDecoder(w.Body).Decode(&whoami))
		assert.Equal(t, env.delegateID, whoami.ID())
		require.NotNil(t, whoami.User)
		assert.Equal(t, "delegate", whoami.User.Username)
		assert.NotContains(t, whoami.Permissions, models.PermSuperadmin)
	})
}

func TestElementsHandler_Write(t *testing.T) {
	env := setupEnv(t)
	publisher := &fakePublisher{}
	handler := NewElementsHandler(setupTestLogger(), env.store, publisher)

	body := api.WriteRequest{
		Changed: []api.ElementWrite{
			{Collection: "motions/motion", Data: json.RawMessage(`{"id":1,"title":"Budget"}`)},
		},
		Deleted:     []string{"users/user:99"},
		Information: []string{"Motion created"},
	}
	req := withUser(httptest.NewRequest(http.MethodPost, "/rest/elements/", jsonBody(t, body)), env.delegateID, "delegate", "s")
	w := httptest.NewRecorder()
	handler.Write(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.WriteResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.ChangeID)

	e, err := env.store.GetElement(context.Background(), "motions/motion", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Budget"}`, string(e.Data))

	require.Len(t, publisher.published, 1)
	assert.Equal(t, int64(3), publisher.published[0].changeID)
	require.NotNil(t, publisher.published[0].change.UserID)
	assert.Equal(t, env.delegateID, *publisher.published[0].change.UserID)
	assert.Equal(t, []models.ElementID{"users/user:99"}, publisher.published[0].change.Deleted)
}

func TestElementsHandler_Write_Errors(t *testing.T) {
	env := setupEnv(t)
	publisher := &fakePublisher{}
	handler := NewElementsHandler(setupTestLogger(), env.store, publisher)

	tests := []struct {
		name       string
		body       string
		anonymous  bool
		wantStatus int
	}{
		{name: "anonymous", body: `{}`, anonymous: true, wantStatus: http.StatusUnauthorized},
		{name: "invalid json", body: `[`, wantStatus: http.StatusBadRequest},
		{name: "empty", body: `{"changed":[],"deleted":[]}`, wantStatus: http.StatusBadRequest},
		{name: "bad collection", body: `{"changed":[{"collection":"Motion","data":{"id":1}}]}`, wantStatus: http.StatusBadRequest},
		{name: "missing id", body: `{"changed":[{"collection":"motions/motion","data":{"title":"x"}}]}`, wantStatus: http.StatusBadRequest},
		{name: "zero id", body: `{"changed":[{"collection":"motions/motion","data":{"id":0}}]}`, wantStatus: http.StatusBadRequest},
		{name: "bad deleted id", body: `{"deleted":["motions/motion"]}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rest/elements/", bytes.NewBufferString(tt.body))
			if !tt.anonymous {
				req = withUser(req, env.delegateID, "delegate", "s")
			}
			w := httptest.NewRecorder()
			handler.Write(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
	assert.Empty(t, publisher.published)
}

func TestHistoryHandler(t *testing.T) {
	env := setupEnv(t)
	handler := NewHistoryHandler(setupTestLogger(), env.accounts, env.store)
	future := time.Now().Add(time.Hour).Unix()

	t.Run("data for superadmin", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/apps/core/history/data/?timestamp="+strconv.FormatInt(future, 10), nil), 1, "admin", "s")
		w := httptest.NewRecorder()
		handler.Data(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var records []models.HistoryRecord
		require.NoError(t, json.NewDecoder(w.Body).Decode(&records))
		// группы и admin из начальных данных, затем delegate
		assert.Len(t, records, 4)
	})

	t.Run("data forbidden for regular user", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/apps/core/history/data/?timestamp="+strconv.FormatInt(future, 10), nil), env.delegateID, "delegate", "s")
		w := httptest.NewRecorder()
		handler.Data(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("data with bad timestamp", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/apps/core/history/data/?timestamp=abc", nil), 1, "admin", "s")
		w := httptest.NewRecorder()
		handler.Data(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("information", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/apps/core/history/information/", nil), env.delegateID, "delegate", "s")
		w := httptest.NewRecorder()
		handler.Information(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var points []models.History
		require.NoError(t, json.NewDecoder(w.Body).Decode(&points))
		require.Len(t, points, 2)
		assert.Equal(t, "User created", points[0].Information)
		assert.Equal(t, "Initial data", points[1].Information)
	})

	t.Run("information requires auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Information(w, httptest.NewRequest(http.MethodGet, "/apps/core/history/information/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "ok", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "db down", pingErr: errors.New("closed"), wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), pingerFunc(func(context.Context) error { return tt.pingErr }), "dev")

			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, "dev", resp.Version)
		})
	}
}
