package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/pkg/api"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.BaseURL())
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

// TestClient_WhoAmI проверяет запрос whoami с токеном
func TestClient_WhoAmI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathWhoAmI, r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		userID := 7
		_ = json.NewEncoder(w).Encode(models.WhoAmI{
			UserID:       &userID,
			User:         &models.User{ID: 7, Username: "admin"},
			Permissions:  []string{"core.can_see"},
			GuestEnabled: true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetTokenSource(staticToken("token-1"))

	resp, err := client.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, resp.ID())
	assert.Equal(t, "admin", resp.User.Username)
	assert.True(t, resp.GuestEnabled)
}

// TestClient_WhoAmI_Anonymous проверяет анонимный запрос
func TestClient_WhoAmI_Anonymous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"user_id":null,"user":null,"guest_enabled":false,"permissions":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetTokenSource(staticToken(""))

	resp, err := client.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsAnonymous())
	assert.NotNil(t, resp.Permissions)
}

// TestClient_Login проверяет успешный логин
func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogin, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req api.LoginRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "testuser", req.Username)
		assert.Equal(t, "secret", req.Password)

		userID := 3
		_ = json.NewEncoder(w).Encode(api.LoginResponse{
			WhoAmI:      models.WhoAmI{UserID: &userID, User: &models.User{ID: 3}},
			AccessToken: "access_token_123",
			ExpiresIn:   3600,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Login(context.Background(), api.LoginRequest{Username: "testuser", Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, 3, resp.ID())
}

// TestClient_Errors проверяет обработку ошибок сервера
func TestClient_Errors(t *testing.T) {
	tests := []struct {
		responseBody   any
		name           string
		expectedErrMsg string
		statusCode     int
	}{
		{
			name:           "Invalid credentials",
			statusCode:     http.StatusUnauthorized,
			responseBody:   api.ErrorResponse{Error: "unauthorized", Message: "invalid credentials"},
			expectedErrMsg: "server error (401): invalid credentials",
		},
		{
			name:           "Forbidden",
			statusCode:     http.StatusForbidden,
			responseBody:   api.ErrorResponse{Error: "forbidden", Message: "history requires admin"},
			expectedErrMsg: "server error (403): history requires admin",
		},
		{
			name:           "Internal server error",
			statusCode:     http.StatusInternalServerError,
			responseBody:   "Internal Server Error",
			expectedErrMsg: "server error (500): Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if errResp, ok := tt.responseBody.(api.ErrorResponse); ok {
					_ = json.NewEncoder(w).Encode(errResp)
				} else {
					_, _ = w.Write([]byte(tt.responseBody.(string)))
				}
			}))
			defer server.Close()

			client := NewClient(server.URL)
			resp, err := client.Login(context.Background(), api.LoginRequest{Username: "u", Password: "p"})

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Contains(t, err.Error(), tt.expectedErrMsg)
			assert.True(t, IsStatus(err, tt.statusCode))
		})
	}
}

// TestClient_Logout проверяет выход
func TestClient_Logout(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogout, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.Logout(context.Background()))
	assert.True(t, called)
}

// TestClient_HistoryData проверяет получение записей истории
func TestClient_HistoryData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathHistoryData, r.URL.Path)
		assert.Equal(t, "1700000000", r.URL.Query().Get("timestamp"))

		_ = json.NewEncoder(w).Encode([]models.HistoryRecord{
			{ElementID: "agenda/item:1", FullData: json.RawMessage(`{"id":1}`), Timestamp: 1699999999},
			{ElementID: "agenda/item:2", Timestamp: 1699999999},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	records, err := client.HistoryData(context.Background(), 1700000000)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].IsDeletion())
	assert.True(t, records[1].IsDeletion())
}

// TestClient_WriteElements проверяет запись элементов
func TestClient_WriteElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathElements, r.URL.Path)

		var req api.WriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Changed, 1)
		assert.Equal(t, []string{"agenda/item:3"}, req.Deleted)

		_ = json.NewEncoder(w).Encode(api.WriteResponse{ChangeID: 12})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.WriteElements(context.Background(), api.WriteRequest{
		Changed: []api.ElementWrite{{Collection: "agenda/item", Data: json.RawMessage(`{"id":1}`)}},
		Deleted: []string{"agenda/item:3"},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(12), resp.ChangeID)
}

// TestClient_ContextCanceled проверяет отмену запроса
func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.WhoAmI(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
