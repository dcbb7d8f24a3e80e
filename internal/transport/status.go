package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iudanet/vaultsync/pkg/api"
)

// statusError представляет ответ peer с неуспешным HTTP статусом.
// Peer достижим, поэтому такая ошибка не превращается в ErrUnreachable.
type statusError struct {
	Code    int
	Message string
}

func newStatusError(code int, body []byte) *statusError {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &statusError{Code: code, Message: errResp.Error}
	}
	return &statusError{Code: code, Message: string(body)}
}

func (e *statusError) Error() string {
	return fmt.Sprintf("peer error (%d): %s", e.Code, e.Message)
}

// Is поддерживает errors.Is для типовых статусов.
func (e *statusError) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// asStatusError разворачивает statusError из цепочки ошибок.
func asStatusError(err error, out **statusError) bool {
	return errors.As(err, out)
}
