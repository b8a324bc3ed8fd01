package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/pkg/api"
)

// Пути REST API сервера
const (
	PathWhoAmI             = "/apps/users/whoami/"
	PathLogin              = "/apps/users/login/"
	PathLogout             = "/apps/users/logout/"
	PathHistoryData        = "/apps/core/history/data/"
	PathHistoryInformation = "/apps/core/history/information/"
	PathElements           = "/rest/elements/"
	PathHealth             = "/health"
)

// TokenSource возвращает access token для запросов. Пустой токен
// означает анонимный запрос.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// HTTPError ответ сервера с кодом вне диапазона 2xx
type HTTPError struct {
	Message    string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus проверяет, что err содержит HTTPError с указанным кодом
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetTokenSource подключает источник access token
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// BaseURL возвращает адрес сервера
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WhoAmI запрашивает текущего пользователя
func (c *Client) WhoAmI(ctx context.Context) (*models.WhoAmI, error) {
	var resp models.WhoAmI
	if err := c.doRequest(ctx, http.MethodGet, PathWhoAmI, nil, &resp); err != nil {
		return nil, fmt.Errorf("whoami request failed: %w", err)
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, PathLogin, req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Logout завершает серверную сессию
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPost, PathLogout, struct{}{}, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// HistoryData запрашивает записи истории по состоянию на timestamp
func (c *Client) HistoryData(ctx context.Context, timestamp int64) ([]models.HistoryRecord, error) {
	query := url.Values{"timestamp": {strconv.FormatInt(timestamp, 10)}}
	var resp []models.HistoryRecord
	if err := c.doRequest(ctx, http.MethodGet, PathHistoryData+"?"+query.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("history data request failed: %w", err)
	}
	return resp, nil
}

// HistoryInformation запрашивает список точек истории
func (c *Client) HistoryInformation(ctx context.Context) ([]models.History, error) {
	var resp []models.History
	if err := c.doRequest(ctx, http.MethodGet, PathHistoryInformation, nil, &resp); err != nil {
		return nil, fmt.Errorf("history information request failed: %w", err)
	}
	return resp, nil
}

// WriteElements записывает изменения элементов и возвращает их change id
func (c *Client) WriteElements(ctx context.Context, req api.WriteRequest) (*api.WriteResponse, error) {
	var resp api.WriteResponse
	if err := c.doRequest(ctx, http.MethodPost, PathElements, req, &resp); err != nil {
		return nil, fmt.Errorf("write request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, PathHealth, nil, nil)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
