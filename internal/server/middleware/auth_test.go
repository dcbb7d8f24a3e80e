package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/server/handlers"
	"github.com/iudanet/vaultsync/internal/transport"
)

func authTestHandler(t *testing.T, selfID string, lookup transport.KeyLookup) (http.Handler, *string) {
	t.Helper()
	var gotPeer string

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := AuthMiddleware(logger, selfID, lookup)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peerID, ok := handlers.GetPeerID(r.Context())
			require.True(t, ok, "peer id must be in context")
			gotPeer = peerID
			w.WriteHeader(http.StatusOK)
		}))
	return handler, &gotPeer
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 42

	token, err := transport.IssueToken(key, "peer-1", "self-1")
	require.NoError(t, err)

	handler, gotPeer := authTestHandler(t, "self-1", func(issuerID string) ([]byte, error) {
		require.Equal(t, "peer-1", issuerID)
		return key, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "peer-1", *gotPeer)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 42

	goodToken, err := transport.IssueToken(key, "peer-1", "self-1")
	require.NoError(t, err)

	lookup := func(issuerID string) ([]byte, error) {
		if issuerID == "peer-1" {
			return key, nil
		}
		return nil, fmt.Errorf("unknown issuer %s", issuerID)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "Missing header", header: ""},
		{name: "Not bearer format", header: "Basic dXNlcjpwYXNz"},
		{name: "Garbage token", header: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := authTestHandler(t, "self-1", lookup)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("Token addressed to another device", func(t *testing.T) {
		handler, _ := authTestHandler(t, "self-OTHER", lookup)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Authorization", "Bearer "+goodToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Unknown issuer", func(t *testing.T) {
		otherKey := make([]byte, 32)
		strangerToken, err := transport.IssueToken(otherKey, "stranger", "self-1")
		require.NoError(t, err)

		handler, _ := authTestHandler(t, "self-1", lookup)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Authorization", "Bearer "+strangerToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
