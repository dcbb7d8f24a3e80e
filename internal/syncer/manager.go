// Package syncer реализует оркестратор синхронизации: пары устройств
// обмениваются дельтами журналов изменений, конфликты разрешаются
// детерминированной политикой, watermark-курсоры продвигаются только за
// durably примененными записями. Один Manager обслуживает обе роли —
// инициатора сессии и принимающую сторону.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/vaultsync/internal/changelog"
	"github.com/iudanet/vaultsync/internal/crypto"
	"github.com/iudanet/vaultsync/internal/crypto/keystore"
	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/registry"
	"github.com/iudanet/vaultsync/internal/status"
	"github.com/iudanet/vaultsync/internal/transport"
	"github.com/iudanet/vaultsync/pkg/api"
)

// pageLimit размер страницы передачи дельты
const pageLimit = 200

// inboundTTL время жизни inbound-сессии без активности
const inboundTTL = 10 * time.Minute

// LocalRecordStore определяет интерфейс материализованного состояния записей.
// Движок применяет к нему победившие версии; реализация по умолчанию живет
// в registry/boltdb, приложение с собственным хранилищем подставляет свое.
type LocalRecordStore interface {
	// ApplyChange durably применяет запись. Более старая версия поверх
	// более новой игнорируется.
	ApplyChange(ctx context.Context, record *models.VaultChangeRecord) error

	// CurrentVersion возвращает версию текущего состояния записи
	// (0, если записи нет).
	CurrentVersion(ctx context.Context, vaultID, recordID string) (int64, error)
}

// Config собирает зависимости Manager.
type Config struct {
	Self     *models.DeviceIdentity
	Peers    registry.PeerStore
	Marks    registry.WatermarkStore
	Policies registry.PolicyStore
	Log      changelog.Log
	Records  LocalRecordStore
	Keys     keystore.Store
	Client   *transport.Client
	Bus      *status.Bus
	Policy   models.ConflictPolicy
	Logger   *slog.Logger
}

// conflictKey адресует запаркованный конфликт.
type conflictKey struct {
	peerID   string
	vaultID  string
	recordID string
}

// pendingConflict конфликт, ожидающий ручного разрешения.
type pendingConflict struct {
	local     *models.VaultChangeRecord
	remote    *models.VaultChangeRecord
	remoteSeq int64 // позиция remote в журнале peer, для watermark
}

// inboundSession состояние принимающей стороны одной сессии: курсоры,
// которые инициатор объявил в negotiate. Нужны для определения конфликтов
// при inbound push.
type inboundSession struct {
	peerID    string
	cursors   map[string]int64 // vault id -> как далеко peer прочитал наш журнал
	createdAt time.Time
}

// Manager представляет оркестратор синхронизации устройства.
type Manager struct {
	self     *models.DeviceIdentity
	peers    registry.PeerStore
	marks    registry.WatermarkStore
	policies registry.PolicyStore
	log      changelog.Log
	records  LocalRecordStore
	keys     keystore.Store
	client   *transport.Client
	bus      *status.Bus
	resolver *Resolver
	logger   *slog.Logger

	mu      sync.Mutex
	active  map[string]*models.SyncSession // peer id -> идущая сессия
	recent  map[string]*models.SyncSession // peer id -> последняя завершенная
	locks   map[string]*sync.Mutex         // per-peer apply lock
	cancels map[string]context.CancelFunc  // peer id -> отмена идущей сессии
	pending map[conflictKey]*pendingConflict
	inbound map[string]*inboundSession // session id -> состояние
}

// NewManager создает оркестратор.
func NewManager(cfg Config) *Manager {
	return &Manager{
		self:     cfg.Self,
		peers:    cfg.Peers,
		marks:    cfg.Marks,
		policies: cfg.Policies,
		log:      cfg.Log,
		records:  cfg.Records,
		keys:     cfg.Keys,
		client:   cfg.Client,
		bus:      cfg.Bus,
		resolver: NewResolver(cfg.Policy),
		logger:   cfg.Logger,
		active:   make(map[string]*models.SyncSession),
		recent:   make(map[string]*models.SyncSession),
		locks:    make(map[string]*sync.Mutex),
		cancels:  make(map[string]context.CancelFunc),
		pending:  make(map[conflictKey]*pendingConflict),
		inbound:  make(map[string]*inboundSession),
	}
}

// peerLock возвращает apply-lock для peer: исходящая сессия и входящий push
// одного peer не применяют записи одновременно.
func (m *Manager) peerLock(peerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[peerID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[peerID] = l
	}
	return l
}

// peerKeys выводит из pairing key материал для одной связи:
// record key для MAC записей и token key для session token.
func (m *Manager) peerKeys(peerID string) (recordKey, tokenKey []byte, err error) {
	pairingKey, err := m.keys.Get(keystore.PairingKeyName(peerID))
	if err != nil {
		return nil, nil, fmt.Errorf("no pairing key for peer %s: %w", peerID, err)
	}
	recordKey, err = crypto.DeriveRecordKey(pairingKey)
	if err != nil {
		return nil, nil, err
	}
	tokenKey, err = crypto.DeriveTokenKey(pairingKey)
	if err != nil {
		return nil, nil, err
	}
	return recordKey, tokenKey, nil
}

// TokenKeyLookup возвращает lookup для проверки входящих session token:
// издатель должен быть trusted peer с pairing key в keystore.
func (m *Manager) TokenKeyLookup(ctx context.Context) transport.KeyLookup {
	return func(issuerID string) ([]byte, error) {
		peer, err := m.peers.GetPeer(ctx, issuerID)
		if err != nil {
			return nil, err
		}
		if !peer.Trusted() {
			return nil, ErrPeerNotTrusted
		}
		pairingKey, err := m.keys.Get(keystore.PairingKeyName(issuerID))
		if err != nil {
			return nil, err
		}
		return crypto.DeriveTokenKey(pairingKey)
	}
}

// ActiveSession возвращает идущую сессию peer или nil.
func (m *Manager) ActiveSession(peerID string) *models.SyncSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[peerID]
}

// LastSession возвращает последнюю завершенную сессию peer или nil.
func (m *Manager) LastSession(peerID string) *models.SyncSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recent[peerID]
}

// PendingConflicts возвращает снимок конфликтов, ждущих ручного разрешения.
func (m *Manager) PendingConflicts() []*models.ConflictCase {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.ConflictCase, 0, len(m.pending))
	for key, p := range m.pending {
		out = append(out, &models.ConflictCase{
			PeerID: key.peerID,
			Local:  p.local.Clone(),
			Remote: p.remote.Clone(),
		})
	}
	return out
}

// Sync выполняет полную сессию синхронизации с peer. Для каждого peer
// одновременно идет максимум одна сессия; повторный вызов возвращает
// ErrSessionActive.
func (m *Manager) Sync(ctx context.Context, peerID string) (*models.SyncSession, error) {
	peer, err := m.peers.GetPeer(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if !peer.Trusted() {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotTrusted, peerID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := m.claimSession(peer, cancel)
	if err != nil {
		return nil, err
	}

	lock := m.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	runErr := m.runSession(ctx, peer, sess)
	m.finishSession(sess, runErr)
	return sess, runErr
}

// claimSession атомарно регистрирует новую сессию peer вместе с её
// cancel-функцией, чтобы CancelSession мог прервать сессию с момента,
// когда она стала видна в ActiveSession.
func (m *Manager) claimSession(peer *models.PeerDevice, cancel context.CancelFunc) (*models.SyncSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[peer.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, peer.ID)
	}

	sess := &models.SyncSession{
		ID:        newSessionID(),
		PeerID:    peer.ID,
		State:     models.SessionIdle,
		StartedAt: time.Now(),
	}
	m.active[peer.ID] = sess
	m.cancels[peer.ID] = cancel
	return sess, nil
}

// CancelSession кооперативно прерывает идущую сессию peer: её context
// отменяется, очередной сетевой вызов возвращает ошибку, сессия завершается
// как Failed. Discovery зовет это, когда peer пропадает из сети посреди
// передачи. Без активной сессии вызов — no-op.
func (m *Manager) CancelSession(peerID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.logger.Info("cancelling active sync session", "peer_id", peerID)
	cancel()
}

// finishSession переводит сессию в терминальное состояние и публикует итог.
func (m *Manager) finishSession(sess *models.SyncSession, runErr error) {
	sess.FinishedAt = time.Now()
	if runErr != nil {
		sess.State = models.SessionFailed
		sess.Err = runErr.Error()
		m.logger.Warn("sync session failed",
			"peer_id", sess.PeerID, "session_id", sess.ID, "error", runErr)
	} else {
		sess.State = models.SessionCompleted
		m.logger.Info("sync session completed",
			"peer_id", sess.PeerID, "session_id", sess.ID,
			"transferred", sess.Transferred, "conflicts", sess.Conflicts)
	}

	m.mu.Lock()
	delete(m.active, sess.PeerID)
	delete(m.cancels, sess.PeerID)
	m.recent[sess.PeerID] = sess
	m.mu.Unlock()

	m.publishSession(sess)
}

// publishSession шлет снимок сессии на шину статуса.
func (m *Manager) publishSession(sess *models.SyncSession) {
	snapshot := *sess
	m.bus.Publish(status.Event{
		Kind:    status.KindSession,
		PeerID:  sess.PeerID,
		Session: &snapshot,
		Err:     sess.Err,
	})
}

// setState переводит сессию в новое состояние и публикует переход.
func (m *Manager) setState(sess *models.SyncSession, state models.SessionState) {
	sess.State = state
	m.publishSession(sess)
}

// ---- принимающая сторона ----

// HandleNegotiate обрабатывает negotiate от инициатора: запоминает его
// курсоры и возвращает наши для vault, разрешенных нашей политикой.
func (m *Manager) HandleNegotiate(ctx context.Context, peerID string, req api.NegotiateRequest) (*api.NegotiateResponse, error) {
	policy, err := m.policies.GetPolicy(ctx, peerID)
	if err != nil {
		return nil, err
	}

	cursors := make(map[string]int64, len(req.Vaults))
	vaults := make([]api.VaultCursor, 0, len(req.Vaults))
	for _, vc := range req.Vaults {
		if !policy.Enabled(vc.VaultID) {
			continue
		}
		cursors[vc.VaultID] = vc.Cursor

		ours, err := m.marks.GetWatermark(ctx, peerID, vc.VaultID)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, api.VaultCursor{VaultID: vc.VaultID, Cursor: ours})
	}

	m.mu.Lock()
	for id, s := range m.inbound {
		if time.Since(s.createdAt) > inboundTTL {
			delete(m.inbound, id)
		}
	}
	m.inbound[req.SessionID] = &inboundSession{
		peerID:    peerID,
		cursors:   cursors,
		createdAt: time.Now(),
	}
	m.mu.Unlock()

	m.logger.Info("sync session negotiated",
		"peer_id", peerID, "session_id", req.SessionID, "vaults", len(vaults))

	return &api.NegotiateResponse{
		SchemaVersion: api.SchemaVersion,
		SessionID:     req.SessionID,
		DeviceID:      m.self.ID,
		Vaults:        vaults,
	}, nil
}

// takeInbound возвращает состояние inbound-сессии.
func (m *Manager) takeInbound(sessionID, peerID string) (*inboundSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.inbound[sessionID]
	if !ok || s.peerID != peerID || time.Since(s.createdAt) > inboundTTL {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return s, nil
}

// HandlePull отдает страницу нашей дельты инициатору.
func (m *Manager) HandlePull(ctx context.Context, peerID, sessionID, vaultID string, cursor int64, limit int) (*api.ChangesResponse, error) {
	if _, err := m.takeInbound(sessionID, peerID); err != nil {
		return nil, err
	}

	policy, err := m.policies.GetPolicy(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if !policy.Enabled(vaultID) {
		return &api.ChangesResponse{SchemaVersion: api.SchemaVersion}, nil
	}

	recordKey, _, err := m.peerKeys(peerID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > pageLimit {
		limit = pageLimit
	}
	entries, err := m.log.ChangesSince(ctx, vaultID, cursor, limit)
	if err != nil {
		return nil, err
	}
	head, err := m.log.HeadSeq(ctx, vaultID)
	if err != nil {
		return nil, err
	}

	wire := make([]api.ChangeRecord, 0, len(entries))
	for _, rec := range entries {
		wire = append(wire, toWire(rec, recordKey))
	}
	return &api.ChangesResponse{
		SchemaVersion: api.SchemaVersion,
		Entries:       wire,
		Head:          head,
	}, nil
}

// HandlePush применяет страницу дельты, присланную инициатором.
func (m *Manager) HandlePush(ctx context.Context, peerID string, req api.PushRequest) (*api.PushResponse, error) {
	inb, err := m.takeInbound(req.SessionID, peerID)
	if err != nil {
		return nil, err
	}
	peerAck, ok := inb.cursors[req.VaultID]
	if !ok {
		// Vault не участвовал в negotiate: политика его не разрешает.
		return nil, fmt.Errorf("%w: vault %s not negotiated", ErrUnknownSession, req.VaultID)
	}

	recordKey, _, err := m.peerKeys(peerID)
	if err != nil {
		return nil, err
	}

	lock := m.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	res, err := m.applyEntries(ctx, peerID, req.VaultID, peerAck, req.Entries, recordKey)
	if err != nil {
		return nil, err
	}

	cursor, err := m.marks.GetWatermark(ctx, peerID, req.VaultID)
	if err != nil {
		return nil, err
	}
	return &api.PushResponse{
		SchemaVersion: api.SchemaVersion,
		Applied:       res.applied,
		Conflicts:     res.conflicts,
		Cursor:        cursor,
	}, nil
}

// applyResult итог применения одной страницы.
type applyResult struct {
	applied   int
	conflicts int
	parked    bool // встречен конфликт, ждущий ручного разрешения
}

// applyEntries применяет страницу записей из журнала peer. Записи идут в
// порядке возрастания их Seq; watermark продвигается строго за durably
// примененными. Запись с несошедшимся MAC отбрасывается, не попадая ни в
// журнал, ни в watermark; остальная страница применяется дальше.
// Запаркованный manual-конфликт останавливает vault: записи после него
// будут перечитаны следующей сессией.
func (m *Manager) applyEntries(ctx context.Context, peerID, vaultID string, peerAck int64, entries []api.ChangeRecord, recordKey []byte) (applyResult, error) {
	var res applyResult

	for _, e := range entries {
		rec := fromWire(e)
		if !VerifyRecord(recordKey, rec, e.MAC) {
			m.logger.Warn("record dropped",
				"peer_id", peerID, "vault_id", vaultID,
				"record_id", e.RecordID, "seq", e.Seq, "reason", ErrAuthenticity)
			continue
		}

		outcome, err := m.applyOne(ctx, peerID, vaultID, peerAck, rec, e.Seq)
		if err != nil {
			return res, err
		}
		switch outcome {
		case outcomeApplied:
			res.applied++
		case outcomeResolved:
			res.applied++
			res.conflicts++
		case outcomeParked:
			res.parked = true
			return res, nil
		case outcomeSkipped:
		}
	}
	return res, nil
}

type applyOutcome int

const (
	outcomeApplied applyOutcome = iota
	outcomeResolved
	outcomeSkipped
	outcomeParked
)

// applyOne применяет одну запись из журнала peer.
//
// Конфликт фиксируется, когда у нас есть локальная версия записи, которую
// peer еще не видел (её позиция в нашем журнале выше его подтвержденного
// курсора) и которая не принадлежит самому peer. Иначе запись либо
// последовательное продолжение (применяем, если доминирует), либо
// устаревший дубль (пропускаем).
func (m *Manager) applyOne(ctx context.Context, peerID, vaultID string, peerAck int64, rec *models.VaultChangeRecord, senderSeq int64) (applyOutcome, error) {
	head, err := m.log.Head(ctx, vaultID, rec.RecordID)
	if err != nil && !errors.Is(err, changelog.ErrRecordNotFound) {
		return 0, err
	}

	switch {
	case head == nil:
		return outcomeApplied, m.applyClean(ctx, peerID, vaultID, rec, senderSeq)

	case rec.SameOrigin(head):
		// Повторная доставка того, что уже в журнале. Прошлая сессия могла
		// оборваться между журналом и материализованным состоянием, поэтому
		// перед продвижением watermark запись применяется еще раз;
		// ApplyChange идемпотентен.
		if err := m.records.ApplyChange(ctx, head); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageApply, err)
		}
		return outcomeSkipped, m.marks.AdvanceWatermark(ctx, peerID, vaultID, senderSeq)

	case head.Seq > peerAck && head.DeviceID != rec.DeviceID:
		return m.applyConflict(ctx, peerID, vaultID, head, rec, senderSeq)

	case rec.Dominates(head):
		return outcomeApplied, m.applyClean(ctx, peerID, vaultID, rec, senderSeq)

	default:
		// Устаревшая версия: peer видел нашу и все равно прислал старое.
		return outcomeSkipped, m.marks.AdvanceWatermark(ctx, peerID, vaultID, senderSeq)
	}
}

// applyClean применяет неконфликтующую запись: журнал, материализованное
// состояние, watermark — в этом порядке.
func (m *Manager) applyClean(ctx context.Context, peerID, vaultID string, rec *models.VaultChangeRecord, senderSeq int64) error {
	stored, err := m.log.AppendRemote(ctx, rec)
	if err != nil {
		return err
	}
	if err := m.records.ApplyChange(ctx, stored); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageApply, err)
	}
	return m.marks.AdvanceWatermark(ctx, peerID, vaultID, senderSeq)
}

// applyConflict прогоняет конкурирующие версии через resolver.
func (m *Manager) applyConflict(ctx context.Context, peerID, vaultID string, head, rec *models.VaultChangeRecord, senderSeq int64) (applyOutcome, error) {
	winner, err := m.resolver.Resolve(head, rec)
	if errors.Is(err, ErrManualPending) {
		m.parkConflict(peerID, vaultID, head, rec, senderSeq)
		return outcomeParked, nil
	}
	if err != nil {
		return 0, err
	}

	m.logger.Info("conflict resolved",
		"vault_id", vaultID, "record_id", rec.RecordID,
		"policy", m.resolver.Policy(), "winner_device", winner.DeviceID)

	if err := m.commitResolution(ctx, peerID, vaultID, head, rec, winner, senderSeq); err != nil {
		return 0, err
	}
	return outcomeResolved, nil
}

// commitResolution durably фиксирует исход конфликта. Remote-версия всегда
// попадает в журнал (для lineage и идемпотентности повторной доставки);
// новая resolution-версия пишется только когда победившее содержимое иначе
// не стало бы головой записи — это не дает зеркальным разрешениям на двух
// устройствах порождать друг для друга новые конфликты.
func (m *Manager) commitResolution(ctx context.Context, peerID, vaultID string, head, rec, winner *models.VaultChangeRecord, senderSeq int64) error {
	stored, err := m.log.AppendRemote(ctx, rec)
	if err != nil {
		return err
	}

	switch {
	case sameContent(winner, head):
		// Локальная версия остается головой: remote в журнале, состояние
		// не трогаем.

	case rec.Dominates(head):
		// Победило remote-содержимое, и remote-версия уже доминирует.
		if err := m.records.ApplyChange(ctx, stored); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageApply, err)
		}

	default:
		// Победившее содержимое не доминирует в порядке версий: логируем
		// исход как новую авторитетную версию.
		resolution := winner.Clone()
		resolution.VaultID = vaultID
		resolved, err := m.log.AppendResolution(ctx, resolution)
		if err != nil {
			return err
		}
		if err := m.records.ApplyChange(ctx, resolved); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageApply, err)
		}
	}

	return m.marks.AdvanceWatermark(ctx, peerID, vaultID, senderSeq)
}

// parkConflict откладывает конфликт до ручного разрешения и извещает шину.
func (m *Manager) parkConflict(peerID, vaultID string, head, rec *models.VaultChangeRecord, senderSeq int64) {
	key := conflictKey{peerID: peerID, vaultID: vaultID, recordID: rec.RecordID}

	m.mu.Lock()
	m.pending[key] = &pendingConflict{
		local:     head.Clone(),
		remote:    rec.Clone(),
		remoteSeq: senderSeq,
	}
	m.mu.Unlock()

	m.logger.Info("conflict parked for manual resolution",
		"peer_id", peerID, "vault_id", vaultID, "record_id", rec.RecordID)
	m.bus.Publish(status.Event{
		Kind:   status.KindConflict,
		PeerID: peerID,
		Conflict: &models.ConflictCase{
			PeerID: peerID,
			Local:  head.Clone(),
			Remote: rec.Clone(),
		},
	})
}

// ResolveManual разрешает запаркованный конфликт выбором пользователя.
// keepLocal=true оставляет локальную версию, false принимает remote.
// Watermark продвигается за разрешенную запись, следующая сессия
// продолжит vault с этого места.
func (m *Manager) ResolveManual(ctx context.Context, peerID, vaultID, recordID string, keepLocal bool) error {
	key := conflictKey{peerID: peerID, vaultID: vaultID, recordID: recordID}

	m.mu.Lock()
	p, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNoPendingConflict, vaultID, recordID)
	}

	winner := p.remote
	if keepLocal {
		winner = p.local
	}

	lock := m.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.commitResolution(ctx, peerID, vaultID, p.local, p.remote, winner, p.remoteSeq); err != nil {
		// Конфликт возвращается в очередь: разрешение не зафиксировано.
		m.mu.Lock()
		m.pending[key] = p
		m.mu.Unlock()
		return err
	}

	m.logger.Info("conflict resolved manually",
		"peer_id", peerID, "vault_id", vaultID, "record_id", recordID,
		"keep_local", keepLocal)
	return nil
}

// RecordLocalChange логирует локальную правку записи и применяет её к
// материализованному состоянию. Это точка входа приложения: все локальные
// мутации vault проходят здесь, чтобы попасть в журнал и в следующую дельту.
func (m *Manager) RecordLocalChange(ctx context.Context, vaultID, recordID string, data []byte, tombstone bool) (*models.VaultChangeRecord, error) {
	stored, err := m.log.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID:   vaultID,
		RecordID:  recordID,
		Data:      data,
		Tombstone: tombstone,
	})
	if err != nil {
		return nil, err
	}
	if err := m.records.ApplyChange(ctx, stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageApply, err)
	}
	return stored, nil
}

// sameContent сообщает, что две версии несут одинаковое содержимое.
func sameContent(a, b *models.VaultChangeRecord) bool {
	return a.Tombstone == b.Tombstone && bytes.Equal(a.Data, b.Data)
}

// toWire переводит запись журнала в сетевую форму с MAC.
func toWire(rec *models.VaultChangeRecord, recordKey []byte) api.ChangeRecord {
	return api.ChangeRecord{
		VaultID:   rec.VaultID,
		RecordID:  rec.RecordID,
		DeviceID:  rec.DeviceID,
		Version:   rec.Version,
		Seq:       rec.Seq,
		Data:      rec.Data,
		Tombstone: rec.Tombstone,
		ClockHint: rec.ClockHint,
		MAC:       SignRecord(recordKey, rec),
	}
}

// fromWire переводит сетевую запись во внутреннюю. Seq отправителя
// намеренно не переносится: позицию в нашем журнале назначает AppendRemote.
func fromWire(e api.ChangeRecord) *models.VaultChangeRecord {
	data := make([]byte, len(e.Data))
	copy(data, e.Data)

	return &models.VaultChangeRecord{
		VaultID:   e.VaultID,
		RecordID:  e.RecordID,
		DeviceID:  e.DeviceID,
		Version:   e.Version,
		Data:      data,
		Tombstone: e.Tombstone,
		ClockHint: e.ClockHint,
	}
}
