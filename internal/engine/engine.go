// Package engine собирает движок синхронизации в одно приложение:
// хранилища, pairing, discovery, оркестратор сессий и HTTP-сервер.
// Это фасад, через который работает демон и CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/vaultsync/internal/changelog/sqlite"
	"github.com/iudanet/vaultsync/internal/crypto"
	"github.com/iudanet/vaultsync/internal/crypto/keystore"
	"github.com/iudanet/vaultsync/internal/discovery"
	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/pairing"
	"github.com/iudanet/vaultsync/internal/registry"
	"github.com/iudanet/vaultsync/internal/registry/boltdb"
	"github.com/iudanet/vaultsync/internal/server"
	"github.com/iudanet/vaultsync/internal/status"
	"github.com/iudanet/vaultsync/internal/syncer"
	"github.com/iudanet/vaultsync/internal/transport"
)

const (
	// DefaultListenAddr адрес сервиса по умолчанию
	DefaultListenAddr = ":7440"

	// DefaultPort известный порт для скана подсети
	DefaultPort = 7440

	// triggerTick период проверки interval-триггеров
	triggerTick = 10 * time.Second
)

// Options конфигурация движка.
type Options struct {
	DataDir    string
	ListenAddr string
	DeviceName string // используется при первом запуске
	Policy     models.ConflictPolicy
	Probe      time.Duration // период discovery probe
	Logger     *slog.Logger
}

// Engine представляет собранный движок синхронизации одного устройства.
type Engine struct {
	identity *models.DeviceIdentity
	storage  *boltdb.Storage
	log      *sqlite.Storage
	keys     keystore.Store
	bus      *status.Bus
	pairing  *pairing.Engine
	manager  *syncer.Manager
	prober   *discovery.Prober
	server   *server.Server
	logger   *slog.Logger

	mu       sync.Mutex
	lastTrig map[string]time.Time // peer id -> последний interval-триггер
}

// Open инициализирует движок: открывает хранилища и при первом запуске
// создает идентичность устройства.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	if opts.Policy == "" {
		opts.Policy = models.PolicyLastWriteWins
	}

	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	storage, err := boltdb.New(ctx, filepath.Join(opts.DataDir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	keys, err := keystore.Open(opts.DataDir, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	identity, err := bootstrapIdentity(ctx, storage, keys, opts.DeviceName, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	log, err := sqlite.New(ctx, filepath.Join(opts.DataDir, "changes.db"), identity.ID)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}

	bus := status.NewBus()
	client := transport.NewClient(transport.DefaultTimeout, logger)

	manager := syncer.NewManager(syncer.Config{
		Self:     identity,
		Peers:    storage,
		Marks:    storage,
		Policies: storage,
		Log:      log,
		Records:  storage,
		Keys:     keys,
		Client:   client,
		Bus:      bus,
		Policy:   opts.Policy,
		Logger:   logger,
	})

	pairingEngine := pairing.NewEngine(identity, storage, keys, client, bus, "", logger)

	prober := discovery.NewProber(discovery.Config{
		Self:     identity,
		Peers:    storage,
		Keys:     keys,
		Client:   client,
		Bus:      bus,
		Source:   discovery.NewSubnetCandidates(DefaultPort),
		Logger:   logger,
		Interval: opts.Probe,
	})

	srv := server.New(server.Config{
		Addr:     opts.ListenAddr,
		Identity: identity,
		Pairing:  pairingEngine,
		Sync:     manager,
		Keys:     manager.TokenKeyLookup(context.Background()),
		Logger:   logger,
	})

	return &Engine{
		identity: identity,
		storage:  storage,
		log:      log,
		keys:     keys,
		bus:      bus,
		pairing:  pairingEngine,
		manager:  manager,
		prober:   prober,
		server:   srv,
		logger:   logger,
		lastTrig: make(map[string]time.Time),
	}, nil
}

// bootstrapIdentity возвращает идентичность устройства, создавая её при
// первом запуске: стабильный UUID, долговременная пара X25519, приватная
// половина в keystore.
func bootstrapIdentity(ctx context.Context, store registry.IdentityStore, keys keystore.Store, name string, logger *slog.Logger) (*models.DeviceIdentity, error) {
	identity, err := store.GetIdentity(ctx)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, registry.ErrIdentityNotFound) {
		return nil, err
	}

	if name == "" {
		name, _ = os.Hostname()
	}
	if err := models.ValidateDeviceName(name); err != nil {
		return nil, err
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := keys.Set(keystore.IdentityKeyName, kp.Private); err != nil {
		return nil, fmt.Errorf("failed to store identity key: %w", err)
	}

	identity = &models.DeviceIdentity{
		ID:        uuid.NewString(),
		Name:      name,
		PublicKey: kp.Public,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveIdentity(ctx, identity); err != nil {
		return nil, err
	}

	logger.Info("device identity created", "device_id", identity.ID, "name", name)
	return identity, nil
}

// Identity возвращает идентичность устройства.
func (e *Engine) Identity() *models.DeviceIdentity {
	return e.identity
}

// Run запускает сервер, discovery и триггеры синхронизации и блокируется
// до отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.server.Run(ctx)
	}()

	// Дожидаемся bind, чтобы pairing рекламировал фактический адрес.
	select {
	case <-e.server.Ready():
		e.pairing.SetAdvertiseAddr(e.server.Addr())
	case err := <-serverErr:
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.prober.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runTriggers(ctx)
	}()

	err := <-serverErr
	wg.Wait()
	return err
}

// runTriggers исполняет политики запуска: background-триггер по появлению
// peer в сети, отмену идущей сессии по его пропаже и interval-триггер
// по таймеру.
func (e *Engine) runTriggers(ctx context.Context) {
	events, cancel := e.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(triggerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case status.KindPeerOnline:
				e.maybeTrigger(ctx, ev.PeerID, models.TriggerBackground)
			case status.KindPeerOffline:
				e.manager.CancelSession(ev.PeerID)
			}

		case <-ticker.C:
			e.intervalPass(ctx)
		}
	}
}

// intervalPass запускает сессии для peer-ов с interval-политикой, у которых
// истек период.
func (e *Engine) intervalPass(ctx context.Context) {
	peers, err := e.storage.ListPeers(ctx)
	if err != nil {
		e.logger.Error("failed to list peers for interval trigger", "error", err)
		return
	}

	for _, peer := range peers {
		if !peer.Trusted() || !peer.Online {
			continue
		}
		policy, err := e.storage.GetPolicy(ctx, peer.ID)
		if err != nil || policy.Mode != models.TriggerInterval || policy.Interval <= 0 {
			continue
		}

		e.mu.Lock()
		due := time.Since(e.lastTrig[peer.ID]) >= policy.Interval
		if due {
			e.lastTrig[peer.ID] = time.Now()
		}
		e.mu.Unlock()

		if due {
			e.triggerAsync(ctx, peer.ID)
		}
	}
}

// maybeTrigger запускает сессию, если политика peer настроена на mode.
func (e *Engine) maybeTrigger(ctx context.Context, peerID string, mode models.TriggerMode) {
	policy, err := e.storage.GetPolicy(ctx, peerID)
	if err != nil || policy.Mode != mode {
		return
	}
	e.triggerAsync(ctx, peerID)
}

// triggerAsync запускает сессию в фоне; параллельный триггер того же peer
// сворачивается в no-op внутри оркестратора.
func (e *Engine) triggerAsync(ctx context.Context, peerID string) {
	go func() {
		if _, err := e.manager.Sync(ctx, peerID); err != nil &&
			!errors.Is(err, syncer.ErrSessionActive) {
			e.logger.Warn("triggered sync failed", "peer_id", peerID, "error", err)
		}
	}()
}

// Ready закрывается после bind HTTP-сервера: с этого момента Addr()
// возвращает фактический адрес.
func (e *Engine) Ready() <-chan struct{} {
	return e.server.Ready()
}

// Addr возвращает адрес, на котором слушает сервер движка.
func (e *Engine) Addr() string {
	return e.server.Addr()
}

// Фасадные операции для CLI и демона.

// BeginPairing начинает pairing на стороне хоста и возвращает QR payload
// для показа на экране.
func (e *Engine) BeginPairing(ctx context.Context) (string, error) {
	return e.pairing.Begin(ctx)
}

// ConsumePairing обрабатывает отсканированный QR payload и при успехе
// возвращает нового trusted peer.
func (e *Engine) ConsumePairing(ctx context.Context, payload string) (*models.PeerDevice, error) {
	return e.pairing.Consume(ctx, payload)
}

// ListPeers возвращает все известные peer-ы, включая revoked.
func (e *Engine) ListPeers(ctx context.Context) ([]*models.PeerDevice, error) {
	return e.storage.ListPeers(ctx)
}

// RenamePeer меняет отображаемое имя peer.
func (e *Engine) RenamePeer(ctx context.Context, peerID, name string) error {
	if err := models.ValidateDeviceName(name); err != nil {
		return err
	}
	return e.storage.RenamePeer(ctx, peerID, name)
}

// Unpair отзывает доверие peer и уничтожает его pairing key. Запись peer
// остается в реестре как revoked.
func (e *Engine) Unpair(ctx context.Context, peerID string) error {
	if err := e.storage.RevokePeer(ctx, peerID); err != nil {
		return err
	}
	if err := e.keys.Delete(keystore.PairingKeyName(peerID)); err != nil {
		return fmt.Errorf("failed to delete pairing key: %w", err)
	}
	e.logger.Info("peer unpaired", "peer_id", peerID)
	return nil
}

// TriggerSync запускает сессию синхронизации с peer и ждет её завершения.
func (e *Engine) TriggerSync(ctx context.Context, peerID string) (*models.SyncSession, error) {
	return e.manager.Sync(ctx, peerID)
}

// SessionStatus возвращает активную сессию с peer или, если её нет,
// последнюю завершенную. nil — синхронизаций еще не было.
func (e *Engine) SessionStatus(peerID string) *models.SyncSession {
	if sess := e.manager.ActiveSession(peerID); sess != nil {
		return sess
	}
	return e.manager.LastSession(peerID)
}

// Policy возвращает политику selective sync для peer.
func (e *Engine) Policy(ctx context.Context, peerID string) (*models.PeerPolicy, error) {
	return e.storage.GetPolicy(ctx, peerID)
}

// SetVaultEnabled включает или выключает vault для peer.
func (e *Engine) SetVaultEnabled(ctx context.Context, peerID, vaultID string, enabled bool) error {
	return e.storage.SetVaultEnabled(ctx, peerID, vaultID, enabled)
}

// SetTriggerMode задает режим запуска синхронизации для peer.
func (e *Engine) SetTriggerMode(ctx context.Context, peerID string, mode models.TriggerMode, interval time.Duration) error {
	return e.storage.SetTriggerMode(ctx, peerID, mode, interval)
}

// Watermarks возвращает курсоры журналов peer по vault-ам.
func (e *Engine) Watermarks(ctx context.Context, peerID string) ([]*models.SyncWatermark, error) {
	return e.storage.ListWatermarks(ctx, peerID)
}

// PendingConflicts возвращает конфликты, ожидающие ручного решения.
func (e *Engine) PendingConflicts() []*models.ConflictCase {
	return e.manager.PendingConflicts()
}

// ResolveConflict применяет ручное решение конфликта: keepLocal оставляет
// локальную версию, иначе побеждает удаленная.
func (e *Engine) ResolveConflict(ctx context.Context, peerID, vaultID, recordID string, keepLocal bool) error {
	return e.manager.ResolveManual(ctx, peerID, vaultID, recordID, keepLocal)
}

// RecordLocalChange фиксирует локальное изменение записи vault в журнале.
// Через него пишет приложение-владелец хранилища.
func (e *Engine) RecordLocalChange(ctx context.Context, vaultID, recordID string, data []byte, tombstone bool) (*models.VaultChangeRecord, error) {
	return e.manager.RecordLocalChange(ctx, vaultID, recordID, data, tombstone)
}

// Events подписывает на события движка (pairing, сессии, достижимость,
// конфликты). Возвращенная функция снимает подписку.
func (e *Engine) Events() (<-chan status.Event, func()) {
	return e.bus.Subscribe()
}

// Close останавливает шину и закрывает хранилища.
func (e *Engine) Close() error {
	e.bus.Close()
	return errors.Join(e.log.Close(), e.storage.Close())
}
