package syncer

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/changelog"
	"github.com/iudanet/vaultsync/internal/changelog/sqlite"
	"github.com/iudanet/vaultsync/internal/crypto/keystore"
	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/registry/boltdb"
	"github.com/iudanet/vaultsync/internal/status"
	"github.com/iudanet/vaultsync/internal/transport"
	"github.com/iudanet/vaultsync/pkg/api"
)

const testVault = "vault-main"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// device полный стек одного устройства для интеграционных сценариев.
type device struct {
	id      string
	mgr     *Manager
	storage *boltdb.Storage
	log     *sqlite.Storage
	keys    keystore.Store
}

func newDevice(t *testing.T, id string, policy models.ConflictPolicy) *device {
	t.Helper()
	ctx := context.Background()

	storage, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	log, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "changes.db"), id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	keys, err := keystore.Open(t.TempDir(), testLogger())
	require.NoError(t, err)

	mgr := NewManager(Config{
		Self:     &models.DeviceIdentity{ID: id, Name: id},
		Peers:    storage,
		Marks:    storage,
		Policies: storage,
		Log:      log,
		Records:  storage,
		Keys:     keys,
		Client:   transport.NewClient(2*time.Second, testLogger()),
		Bus:      status.NewBus(),
		Policy:   policy,
		Logger:   testLogger(),
	})
	return &device{id: id, mgr: mgr, storage: storage, log: log, keys: keys}
}

// pair связывает два устройства: общий pairing key, взаимные trusted-записи,
// vault разрешен с обеих сторон.
func pair(t *testing.T, a, b *device) {
	t.Helper()
	ctx := context.Background()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	for _, pv := range []struct{ self, other *device }{{a, b}, {b, a}} {
		require.NoError(t, pv.self.keys.Set(keystore.PairingKeyName(pv.other.id), key))
		require.NoError(t, pv.self.storage.SavePaired(ctx, &models.PeerDevice{
			ID:    pv.other.id,
			Name:  pv.other.id,
			Trust: models.TrustTrusted,
		}))
		require.NoError(t, pv.self.storage.SetVaultEnabled(ctx, pv.other.id, testVault, true))
	}
}

// link поднимает серверы обоих устройств и сообщает каждому адрес другого.
func link(t *testing.T, a, b *device) {
	t.Helper()
	ctx := context.Background()

	addrA := serveAddr(t, a, b.id)
	addrB := serveAddr(t, b, a.id)

	require.NoError(t, a.storage.UpdatePresence(ctx, b.id, true, addrB, time.Now()))
	require.NoError(t, b.storage.UpdatePresence(ctx, a.id, true, addrA, time.Now()))
}

func serveAddr(t *testing.T, d *device, peerID string) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sync/negotiate", func(w http.ResponseWriter, r *http.Request) {
		var req api.NegotiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp, err := d.mgr.HandleNegotiate(r.Context(), peerID, req)
		writeJSON(t, w, resp, err)
	})
	mux.HandleFunc("GET /api/v1/sync/changes", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cursor, _ := strconv.ParseInt(q.Get("cursor"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))
		resp, err := d.mgr.HandlePull(r.Context(), peerID, q.Get("session_id"), q.Get("vault_id"), cursor, limit)
		writeJSON(t, w, resp, err)
	})
	mux.HandleFunc("POST /api/v1/sync/changes", func(w http.ResponseWriter, r *http.Request) {
		var req api.PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp, err := d.mgr.HandlePush(r.Context(), peerID, req)
		writeJSON(t, w, resp, err)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func writeJSON(t *testing.T, w http.ResponseWriter, resp any, err error) {
	t.Helper()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: err.Error()})
		return
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func headData(t *testing.T, d *device, recordID string) []byte {
	t.Helper()
	head, err := d.log.Head(context.Background(), testVault, recordID)
	require.NoError(t, err)
	return head.Data
}

func TestSync_CatchUp(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
		_, err := a.mgr.RecordLocalChange(ctx, testVault, id, []byte("payload "+id), false)
		require.NoError(t, err)
	}

	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.State)
	assert.Equal(t, 3, sess.Transferred)
	assert.Equal(t, 0, sess.Conflicts)

	assert.Equal(t, []byte("payload rec-2"), headData(t, b, "rec-2"))
	version, err := b.storage.CurrentVersion(ctx, testVault, "rec-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Повторная сессия ничего не передает: дельта пуста.
	sess, err = a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Transferred)
}

func TestSync_DivergentEditsConvergeLWW(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	// Общая база: запись создана на A и доставлена на B.
	_, err := a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("base"), false)
	require.NoError(t, err)
	_, err = a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)

	// Конкурирующие правки на обеих сторонах; правка B позже.
	_, err = a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("edit from a"), false)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = b.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("edit from b"), false)
	require.NoError(t, err)

	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.State)
	assert.GreaterOrEqual(t, sess.Conflicts, 1)

	// Оба устройства сошлись на более поздней правке.
	assert.Equal(t, []byte("edit from b"), headData(t, a, "rec-1"))
	assert.Equal(t, []byte("edit from b"), headData(t, b, "rec-1"))
}

func TestSync_TombstonePropagates(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	_, err := a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("secret"), false)
	require.NoError(t, err)
	_, err = a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)

	_, err = a.mgr.RecordLocalChange(ctx, testVault, "rec-1", nil, true)
	require.NoError(t, err)
	_, err = a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)

	head, err := b.log.Head(ctx, testVault, "rec-1")
	require.NoError(t, err)
	assert.True(t, head.Tombstone)
}

func TestSync_ManualConflictParksAndResolves(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyManual)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	_, err := a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("base"), false)
	require.NoError(t, err)
	_, err = a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)

	_, err = a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("edit from a"), false)
	require.NoError(t, err)
	_, err = b.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("edit from b"), false)
	require.NoError(t, err)

	markBefore, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)

	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.State)

	// Конфликт запаркован, watermark не продвинулся мимо него.
	pending := a.mgr.PendingConflicts()
	require.Len(t, pending, 1)
	assert.Equal(t, []byte("edit from a"), pending[0].Local.Data)
	assert.Equal(t, []byte("edit from b"), pending[0].Remote.Data)

	// Курсор дошел до базовой записи (позиция 1 в журнале B) и встал
	// перед конфликтующей.
	markAfter, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Equal(t, int64(1), markAfter)
	assert.Equal(t, []byte("edit from a"), headData(t, a, "rec-1"))

	// Пользователь принимает remote-версию.
	require.NoError(t, a.mgr.ResolveManual(ctx, b.id, testVault, "rec-1", false))
	assert.Empty(t, a.mgr.PendingConflicts())
	assert.Equal(t, []byte("edit from b"), headData(t, a, "rec-1"))

	markResolved, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Greater(t, markResolved, markBefore)

	// Повторное разрешение того же конфликта невозможно.
	err = a.mgr.ResolveManual(ctx, b.id, testVault, "rec-1", false)
	assert.ErrorIs(t, err, ErrNoPendingConflict)
}

func TestSync_ForgedRecordsDroppedSessionCompletes(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	// B подменяет pairing key: его MAC перестают сходиться у A.
	wrong := make([]byte, 32)
	wrong[0] = 1
	require.NoError(t, b.keys.Set(keystore.PairingKeyName(a.id), wrong))

	link(t, a, b)

	_, err := b.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("forged"), false)
	require.NoError(t, err)

	// Подделанная запись отброшена, сессия доходит до конца.
	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.State)
	assert.Equal(t, 0, sess.Transferred)

	// Запись не попала ни в журнал, ни в watermark.
	_, err = a.log.Head(ctx, testVault, "rec-1")
	assert.ErrorIs(t, err, changelog.ErrRecordNotFound)
	mark, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Zero(t, mark)
}

func TestHandlePush_DropsForgedKeepsGenuine(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	recordKey, _, err := a.mgr.peerKeys(b.id)
	require.NoError(t, err)

	_, err = a.mgr.HandleNegotiate(ctx, b.id, api.NegotiateRequest{
		SchemaVersion: api.SchemaVersion,
		SessionID:     "sess-1",
		DeviceID:      b.id,
		Vaults:        []api.VaultCursor{{VaultID: testVault, Cursor: 0}},
	})
	require.NoError(t, err)

	good := toWire(&models.VaultChangeRecord{
		VaultID: testVault, RecordID: "rec-good", DeviceID: b.id,
		Version: 1, Seq: 1, Data: []byte("genuine"), ClockHint: 1,
	}, recordKey)
	forged := toWire(&models.VaultChangeRecord{
		VaultID: testVault, RecordID: "rec-forged", DeviceID: b.id,
		Version: 1, Seq: 2, Data: []byte("original"), ClockHint: 1,
	}, recordKey)
	// Содержимое подменено после подписи: MAC не сойдется.
	forged.Data = []byte("tampered")
	tail := toWire(&models.VaultChangeRecord{
		VaultID: testVault, RecordID: "rec-tail", DeviceID: b.id,
		Version: 1, Seq: 3, Data: []byte("genuine too"), ClockHint: 1,
	}, recordKey)

	resp, err := a.mgr.HandlePush(ctx, b.id, api.PushRequest{
		SchemaVersion: api.SchemaVersion,
		SessionID:     "sess-1",
		VaultID:       testVault,
		Entries:       []api.ChangeRecord{good, forged, tail},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Applied)

	// Подделка не в журнале, соседние записи применены; watermark
	// продвинут записями вокруг неё, но не ею самой.
	_, err = a.log.Head(ctx, testVault, "rec-forged")
	assert.ErrorIs(t, err, changelog.ErrRecordNotFound)
	assert.Equal(t, []byte("genuine"), headData(t, a, "rec-good"))
	assert.Equal(t, []byte("genuine too"), headData(t, a, "rec-tail"))
	mark, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Equal(t, int64(3), mark)
}

func TestSync_SelectiveSyncExcludesVault(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	// B выключает vault у себя: пересечение политик пусто.
	require.NoError(t, b.storage.SetVaultEnabled(ctx, a.id, testVault, false))

	_, err := a.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("private"), false)
	require.NoError(t, err)

	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Transferred)
	assert.Empty(t, sess.Vaults)

	_, err = b.log.Head(ctx, testVault, "rec-1")
	assert.Error(t, err)
}

func TestSync_InterruptedTransferResumes(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	addrA := serveAddr(t, a, b.id)
	require.NoError(t, b.storage.UpdatePresence(ctx, a.id, true, addrA, time.Now()))
	// A знает для B заведомо мертвый адрес.
	require.NoError(t, a.storage.UpdatePresence(ctx, b.id, true, "127.0.0.1:1", time.Now()))

	_, err := b.mgr.RecordLocalChange(ctx, testVault, "rec-1", []byte("payload"), false)
	require.NoError(t, err)

	_, err = a.mgr.Sync(ctx, b.id)
	assert.ErrorIs(t, err, transport.ErrUnreachable)

	// Peer вернулся в сеть: следующая сессия доводит дело до конца.
	addrB := serveAddr(t, b, a.id)
	require.NoError(t, a.storage.UpdatePresence(ctx, b.id, true, addrB, time.Now()))

	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Transferred)
	assert.Equal(t, []byte("payload"), headData(t, a, "rec-1"))
}

// flakyRecordStore обертка над материализованным хранилищем, падающая на
// заданном по счету ApplyChange.
type flakyRecordStore struct {
	LocalRecordStore
	failAt  int
	applies int
}

func (f *flakyRecordStore) ApplyChange(ctx context.Context, rec *models.VaultChangeRecord) error {
	f.applies++
	if f.applies == f.failAt {
		return errors.New("record store unavailable")
	}
	return f.LocalRecordStore.ApplyChange(ctx, rec)
}

func TestSync_ResumeReappliesAfterStorageFailure(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)
	link(t, a, b)

	recs := []string{"rec-1", "rec-2", "rec-3", "rec-4", "rec-5"}
	for _, id := range recs {
		_, err := b.mgr.RecordLocalChange(ctx, testVault, id, []byte("payload "+id), false)
		require.NoError(t, err)
	}

	// Материализованное хранилище падает на третьей записи: она остается
	// в журнале A, но не в состоянии.
	a.mgr.records = &flakyRecordStore{LocalRecordStore: a.storage, failAt: 3}

	_, err := a.mgr.Sync(ctx, b.id)
	require.ErrorIs(t, err, ErrTransferIncomplete)
	assert.ErrorIs(t, err, ErrStorageApply)

	// Две записи durable, watermark стоит перед третьей.
	mark, err := a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mark)

	// Повторная сессия доводит все пять, включая ту, что уже была в
	// журнале, но не дошла до материализованного состояния.
	sess, err := a.mgr.Sync(ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.State)

	for _, id := range recs {
		assert.Equal(t, []byte("payload "+id), headData(t, a, id))
		version, err := a.storage.CurrentVersion(ctx, testVault, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version, id)
	}
	mark, err = a.storage.GetWatermark(ctx, b.id, testVault)
	require.NoError(t, err)
	assert.Equal(t, int64(5), mark)
}

func TestSync_CancelledWhenPeerGoesOffline(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	// Peer завис: negotiate никогда не отвечает.
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})
	addr := strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, a.storage.UpdatePresence(ctx, b.id, true, addr, time.Now()))

	done := make(chan error, 1)
	go func() {
		_, err := a.mgr.Sync(ctx, b.id)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return a.mgr.ActiveSession(b.id) != nil
	}, 2*time.Second, 5*time.Millisecond)

	a.mgr.CancelSession(b.id)

	// Сессия обязана выйти сильно раньше таймаута transport-клиента.
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancellation")
	}

	last := a.mgr.LastSession(b.id)
	require.NotNil(t, last)
	assert.Equal(t, models.SessionFailed, last.State)

	// Отмена завершившейся сессии — no-op.
	a.mgr.CancelSession(b.id)
	assert.Nil(t, a.mgr.ActiveSession(b.id))
}

func TestSync_SecondTriggerCoalesces(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	peer, err := a.storage.GetPeer(ctx, b.id)
	require.NoError(t, err)

	_, err = a.mgr.claimSession(peer, func() {})
	require.NoError(t, err)

	_, err = a.mgr.Sync(ctx, b.id)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestSync_UntrustedPeerRefused(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	require.NoError(t, a.storage.RevokePeer(ctx, b.id))

	_, err := a.mgr.Sync(ctx, b.id)
	assert.ErrorIs(t, err, ErrPeerNotTrusted)
}

func TestHandlePush_UnknownSessionRejected(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "device-a", models.PolicyLastWriteWins)
	b := newDevice(t, "device-b", models.PolicyLastWriteWins)
	pair(t, a, b)

	_, err := a.mgr.HandlePush(ctx, b.id, api.PushRequest{
		SchemaVersion: api.SchemaVersion,
		SessionID:     "never-negotiated",
		VaultID:       testVault,
	})
	assert.ErrorIs(t, err, ErrUnknownSession)
}
