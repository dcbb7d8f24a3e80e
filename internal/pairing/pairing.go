// Package pairing реализует установление криптографического доверия между
// двумя установками через обмен QR-кодом: эфемерный X25519-обмен,
// MAC-подтверждение в обе стороны и фиксацию долговременного pairing key,
// отличного от ключей сессии.
package pairing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/vaultsync/internal/crypto"
	"github.com/iudanet/vaultsync/internal/crypto/keystore"
	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/registry"
	"github.com/iudanet/vaultsync/internal/status"
	"github.com/iudanet/vaultsync/internal/transport"
	"github.com/iudanet/vaultsync/pkg/api"
)

// Метки направления в MAC подтверждения: подтверждение клиента нельзя
// отразить обратно как подтверждение хоста.
const (
	macLabelClient = "pair-confirm-client"
	macLabelHost   = "pair-confirm-host"
)

// Engine представляет pairing-движок одной установки. Работает в обе
// стороны: хост показывает QR и ждет подтверждения, клиент сканирует
// QR и шлет подтверждение.
type Engine struct {
	identity *models.DeviceIdentity
	peers    registry.PeerStore
	keys     keystore.Store
	client   *transport.Client
	bus      *status.Bus
	logger   *slog.Logger
	sessions *sessionTable

	// advertiseAddr адрес host:port, который хост кладет в QR payload
	advertiseAddr string
}

// NewEngine создает pairing-движок.
func NewEngine(
	identity *models.DeviceIdentity,
	peers registry.PeerStore,
	keys keystore.Store,
	client *transport.Client,
	bus *status.Bus,
	advertiseAddr string,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		identity:      identity,
		peers:         peers,
		keys:          keys,
		client:        client,
		bus:           bus,
		logger:        logger,
		sessions:      newSessionTable(),
		advertiseAddr: advertiseAddr,
	}
}

// SetAdvertiseAddr задает адрес, который попадает в QR payload и в
// подтверждения. Вызывается после старта HTTP-сервера, когда фактический
// порт известен.
func (e *Engine) SetAdvertiseAddr(addr string) {
	e.advertiseAddr = addr
}

// Begin начинает pairing на стороне хоста: создает одноразовую сессию
// и возвращает строку QR payload (base64url JSON) для показа на экране.
func (e *Engine) Begin(ctx context.Context) (string, error) {
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	expiresAt := time.Now().Add(SessionTTL)
	nonceKey := base64.StdEncoding.EncodeToString(nonce)

	e.sessions.put(nonceKey, &session{
		ephemeral: ephemeral,
		nonce:     nonce,
		expiresAt: expiresAt,
	})

	// Неподтвержденная сессия уничтожается по истечении срока;
	// хост узнает об этом событием на шине.
	time.AfterFunc(time.Until(expiresAt), func() {
		if e.sessions.drop(nonceKey) {
			e.logger.Info("pairing session expired without confirmation")
			e.bus.Publish(status.Event{Kind: status.KindPairing, Err: ErrTimeout.Error()})
		}
	})

	payload := api.PairingPayload{
		SchemaVersion: api.SchemaVersion,
		DeviceID:      e.identity.ID,
		DeviceName:    e.identity.Name,
		EphemeralKey:  base64.StdEncoding.EncodeToString(ephemeral.Public),
		Nonce:         nonceKey,
		ExpiresAt:     expiresAt.Unix(),
		Address:       e.advertiseAddr,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	e.logger.Info("pairing session started", "expires_at", expiresAt)
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Consume обрабатывает отсканированный QR payload на стороне клиента:
// выполняет обмен ключами, шлет подтверждение хосту и при успехе
// фиксирует хоста как trusted peer.
func (e *Engine) Consume(ctx context.Context, encoded string) (*models.PeerDevice, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	var payload api.PairingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if payload.SchemaVersion != api.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrPayload, payload.SchemaVersion)
	}
	if time.Now().Unix() > payload.ExpiresAt {
		return nil, ErrExpired
	}

	hostEph, err := base64.StdEncoding.DecodeString(payload.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key: %v", ErrPayload, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce: %v", ErrPayload, err)
	}

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	keys, err := e.deriveKeys(ephemeral.Private, hostEph, nonce)
	if err != nil {
		return nil, err
	}

	mac := crypto.MAC(keys.ConfirmKey,
		[]byte(macLabelClient), nonce,
		[]byte(e.identity.ID), []byte(payload.DeviceID),
		ephemeral.Public, hostEph,
	)

	req := api.PairConfirmRequest{
		SchemaVersion: api.SchemaVersion,
		DeviceID:      e.identity.ID,
		DeviceName:    e.identity.Name,
		EphemeralKey:  base64.StdEncoding.EncodeToString(ephemeral.Public),
		StaticKey:     base64.StdEncoding.EncodeToString(e.identity.PublicKey),
		Address:       e.advertiseAddr,
		Nonce:         payload.Nonce,
		MAC:           base64.StdEncoding.EncodeToString(mac),
	}

	resp, err := e.client.PairConfirm(ctx, payload.Address, req)
	if err != nil {
		return nil, err
	}

	// Хост доказывает владение тем же секретом собственным MAC.
	hostMAC, err := base64.StdEncoding.DecodeString(resp.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad host mac encoding", ErrForged)
	}
	if !crypto.VerifyMAC(keys.ConfirmKey, hostMAC,
		[]byte(macLabelHost), nonce,
		[]byte(payload.DeviceID), []byte(e.identity.ID),
		hostEph, ephemeral.Public,
	) {
		return nil, ErrForged
	}

	hostStatic, err := base64.StdEncoding.DecodeString(resp.StaticKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad host static key", ErrForged)
	}

	peer, err := e.commitPeer(ctx, payload.DeviceID, resp.DeviceName, hostStatic, payload.Address, keys.PairingKey)
	if err != nil {
		return nil, err
	}

	e.logger.Info("paired with host", "peer_id", peer.ID, "peer_name", peer.Name)
	e.bus.Publish(status.Event{Kind: status.KindPairing, PeerID: peer.ID})
	return peer, nil
}

// HandleConfirm обрабатывает подтверждение pairing на стороне хоста.
// Вызывается HTTP-обработчиком. Сессия уничтожается при любом исходе.
func (e *Engine) HandleConfirm(ctx context.Context, req api.PairConfirmRequest) (*api.PairConfirmResponse, error) {
	if req.SchemaVersion != api.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrPayload, req.SchemaVersion)
	}

	sess, ok := e.sessions.take(req.Nonce, time.Now())
	if !ok {
		// Неизвестный nonce, повторное использование или истекший срок —
		// для внешнего наблюдателя неразличимо.
		return nil, ErrExpired
	}

	clientEph, err := base64.StdEncoding.DecodeString(req.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key", ErrForged)
	}
	clientStatic, err := base64.StdEncoding.DecodeString(req.StaticKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad static key", ErrForged)
	}

	keys, err := e.deriveKeys(sess.ephemeral.Private, clientEph, sess.nonce)
	if err != nil {
		return nil, err
	}

	clientMAC, err := base64.StdEncoding.DecodeString(req.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad mac encoding", ErrForged)
	}
	if !crypto.VerifyMAC(keys.ConfirmKey, clientMAC,
		[]byte(macLabelClient), sess.nonce,
		[]byte(req.DeviceID), []byte(e.identity.ID),
		clientEph, sess.ephemeral.Public,
	) {
		e.logger.Warn("pairing confirmation failed mac check", "claimed_device", req.DeviceID)
		e.bus.Publish(status.Event{Kind: status.KindPairing, Err: ErrForged.Error()})
		return nil, ErrForged
	}

	if err := models.ValidateDeviceName(req.DeviceName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	peer, err := e.commitPeer(ctx, req.DeviceID, req.DeviceName, clientStatic, req.Address, keys.PairingKey)
	if err != nil {
		return nil, err
	}

	mac := crypto.MAC(keys.ConfirmKey,
		[]byte(macLabelHost), sess.nonce,
		[]byte(e.identity.ID), []byte(req.DeviceID),
		sess.ephemeral.Public, clientEph,
	)

	e.logger.Info("paired with client", "peer_id", peer.ID, "peer_name", peer.Name)
	e.bus.Publish(status.Event{Kind: status.KindPairing, PeerID: peer.ID})

	return &api.PairConfirmResponse{
		SchemaVersion: api.SchemaVersion,
		DeviceID:      e.identity.ID,
		DeviceName:    e.identity.Name,
		StaticKey:     base64.StdEncoding.EncodeToString(e.identity.PublicKey),
		MAC:           base64.StdEncoding.EncodeToString(mac),
	}, nil
}

// deriveKeys выводит ключи сессии из эфемерного обмена.
func (e *Engine) deriveKeys(private, peerPublic, nonce []byte) (*crypto.SessionKeys, error) {
	secret, err := crypto.SharedSecret(private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForged, err)
	}
	keys, err := crypto.DeriveSessionKeys(secret, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}
	return keys, nil
}

// commitPeer durably фиксирует исход успешного pairing: pairing key в
// keystore, peer в реестре как trusted. Ключевой материал перезаписывается
// только здесь, после полной проверки — re-pairing идемпотентен.
func (e *Engine) commitPeer(ctx context.Context, peerID, peerName string, publicKey []byte, addrHint string, pairingKey []byte) (*models.PeerDevice, error) {
	if err := e.keys.Set(keystore.PairingKeyName(peerID), pairingKey); err != nil {
		return nil, fmt.Errorf("failed to store pairing key: %w", err)
	}

	peer := &models.PeerDevice{
		ID:        peerID,
		Name:      peerName,
		PublicKey: publicKey,
		AddrHint:  addrHint,
		Trust:     models.TrustTrusted,
	}
	if err := e.peers.SavePaired(ctx, peer); err != nil {
		return nil, fmt.Errorf("failed to save peer: %w", err)
	}
	return peer, nil
}
