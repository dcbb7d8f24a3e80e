package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/transport"
	"github.com/iudanet/vaultsync/pkg/api"
)

type fakePairing struct {
	resp *api.PairConfirmResponse
	err  error
}

func (f *fakePairing) HandleConfirm(_ context.Context, _ api.PairConfirmRequest) (*api.PairConfirmResponse, error) {
	return f.resp, f.err
}

type fakeSync struct{}

func (f *fakeSync) HandleNegotiate(_ context.Context, peerID string, req api.NegotiateRequest) (*api.NegotiateResponse, error) {
	return &api.NegotiateResponse{
		SchemaVersion: api.SchemaVersion,
		SessionID:     req.SessionID,
		DeviceID:      "self-1",
		Vaults:        req.Vaults,
	}, nil
}

func (f *fakeSync) HandlePull(_ context.Context, _, _, _ string, _ int64, _ int) (*api.ChangesResponse, error) {
	return &api.ChangesResponse{SchemaVersion: api.SchemaVersion}, nil
}

func (f *fakeSync) HandlePush(_ context.Context, _ string, _ api.PushRequest) (*api.PushResponse, error) {
	return &api.PushResponse{SchemaVersion: api.SchemaVersion}, nil
}

// startServer запускает сервер на свободном порту и ждет готовности.
func startServer(t *testing.T, tokenKey []byte) string {
	t.Helper()

	lookup := func(issuerID string) ([]byte, error) {
		if issuerID != "peer-1" {
			return nil, fmt.Errorf("unknown issuer %s", issuerID)
		}
		return tokenKey, nil
	}

	srv := New(Config{
		Addr:     "127.0.0.1:0",
		Identity: &models.DeviceIdentity{ID: "self-1", Name: "Ноутбук"},
		Pairing:  &fakePairing{resp: &api.PairConfirmResponse{SchemaVersion: api.SchemaVersion, DeviceID: "self-1"}},
		Sync:     &fakeSync{},
		Keys:     lookup,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	// Run выставляет фактический адрес после bind.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "127.0.0.1:0" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr()
}

func TestServer_PingRequiresAuth(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 9
	addr := startServer(t, key)

	resp, err := http.Get("http://" + addr + "/api/v1/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_PingWithToken(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 9
	addr := startServer(t, key)

	token, err := transport.IssueToken(key, "peer-1", "self-1")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/api/v1/ping", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ping api.PingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ping))
	assert.Equal(t, "self-1", ping.DeviceID)
	assert.Equal(t, api.SchemaVersion, ping.SchemaVersion)
}

func TestServer_PairConfirmUnauthenticated(t *testing.T) {
	key := make([]byte, 32)
	addr := startServer(t, key)

	body, err := json.Marshal(api.PairConfirmRequest{SchemaVersion: api.SchemaVersion})
	require.NoError(t, err)

	// Без session token: pairing доказывает доверие MAC-ом, а не токеном.
	resp, err := http.Post("http://"+addr+"/api/v1/pair/confirm", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_NegotiateRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 9
	addr := startServer(t, key)

	token, err := transport.IssueToken(key, "peer-1", "self-1")
	require.NoError(t, err)

	client := transport.NewClient(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	resp, err := client.Negotiate(context.Background(), addr, token, api.NegotiateRequest{
		SchemaVersion: api.SchemaVersion,
		SessionID:     "session-1",
		DeviceID:      "peer-1",
		Vaults:        []api.VaultCursor{{VaultID: "vault-1", Cursor: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, "self-1", resp.DeviceID)
}
