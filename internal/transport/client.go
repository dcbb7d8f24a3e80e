// Package transport реализует точка-точка запрос/ответ между устройствами
// в локальной сети: JSON поверх HTTP с bounded timeout, ограниченным
// экспоненциальным retry и peer session token аутентификацией.
// Трафик ходит по локальной сети открытым HTTP, но каждый запрос
// аутентифицирован pairing-ключом, а каждая запись несет собственный MAC.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/vaultsync/pkg/api"
)

const (
	// DefaultTimeout bounded timeout одного HTTP-вызова
	DefaultTimeout = 10 * time.Second

	// retryAttempts общее число попыток сетевого вызова (1 + 2 повтора).
	// Дальше — ErrUnreachable; новые попытки требуют нового триггера.
	retryAttempts = 3

	// retryBase начальная задержка экспоненциального backoff
	retryBase = 500 * time.Millisecond
)

// Client представляет HTTP клиент для взаимодействия с peer-устройствами
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создает новый transport клиент
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Ping проверяет достижимость peer по адресу. Используется discovery.
func (c *Client) Ping(ctx context.Context, addr, token string) (*api.PingResponse, error) {
	var resp api.PingResponse
	if err := c.doRequest(ctx, http.MethodGet, addr, "/api/v1/ping", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PairConfirm шлет подтверждение pairing хосту. Единственный вызов без
// session token: доверие здесь доказывается MAC внутри запроса.
func (c *Client) PairConfirm(ctx context.Context, addr string, req api.PairConfirmRequest) (*api.PairConfirmResponse, error) {
	var resp api.PairConfirmResponse
	if err := c.doRequest(ctx, http.MethodPost, addr, "/api/v1/pair/confirm", "", req, &resp); err != nil {
		return nil, fmt.Errorf("pair confirm request failed: %w", err)
	}
	return &resp, nil
}

// Negotiate открывает sync-сессию: обменивается watermark-курсорами.
func (c *Client) Negotiate(ctx context.Context, addr, token string, req api.NegotiateRequest) (*api.NegotiateResponse, error) {
	var resp api.NegotiateResponse
	if err := c.doRequest(ctx, http.MethodPost, addr, "/api/v1/sync/negotiate", token, req, &resp); err != nil {
		return nil, fmt.Errorf("negotiate request failed: %w", err)
	}
	if resp.SchemaVersion != api.SchemaVersion {
		return nil, fmt.Errorf("%w: got %d", ErrSchemaVersion, resp.SchemaVersion)
	}
	return &resp, nil
}

// PullChanges забирает страницу дельты журнала peer.
func (c *Client) PullChanges(ctx context.Context, addr, token, sessionID, vaultID string, cursor int64, limit int) (*api.ChangesResponse, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("vault_id", vaultID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp api.ChangesResponse
	path := "/api/v1/sync/changes?" + q.Encode()
	if err := c.doRequest(ctx, http.MethodGet, addr, path, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("pull changes request failed: %w", err)
	}
	return &resp, nil
}

// PushChanges отдает страницу нашей дельты peer-у.
func (c *Client) PushChanges(ctx context.Context, addr, token string, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	if err := c.doRequest(ctx, http.MethodPost, addr, "/api/v1/sync/changes", token, req, &resp); err != nil {
		return nil, fmt.Errorf("push changes request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос с ограниченным экспоненциальным retry.
// Сетевые ошибки (timeout, connection refused) повторяются и после
// исчерпания попыток сворачиваются в ErrUnreachable; ошибки протокола
// (HTTP статус) не повторяются.
func (c *Client) doRequest(ctx context.Context, method, addr, path, token string, body, result interface{}) error {
	var bodyData []byte
	if body != nil {
		var err error
		bodyData, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(retryAttempts-1, retry.NewExponential(retryBase))
	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.doOnce(ctx, method, addr, path, token, bodyData, result)
		if err == nil {
			return nil
		}

		var statusErr *statusError
		if ok := asStatusError(err, &statusErr); ok {
			// Ответ получен — peer достижим, повторять нет смысла.
			return err
		}

		c.logger.Debug("transport retry",
			"addr", addr, "path", path, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	var statusErr *statusError
	if ok := asStatusError(err, &statusErr); ok {
		return statusErr
	}
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
}

// doOnce выполняет один HTTP запрос без повторов.
func (c *Client) doOnce(ctx context.Context, method, addr, path, token string, bodyData []byte, result interface{}) error {
	var bodyReader io.Reader
	if bodyData != nil {
		bodyReader = bytes.NewReader(bodyData)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if bodyData != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
