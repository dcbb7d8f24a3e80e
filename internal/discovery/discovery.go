// Package discovery реализует обнаружение peer-ов в локальной сети:
// периодические аутентифицированные probe по известным address hint и
// ограниченный перебор /24 подсети для trusted peer-ов, потерявших адрес.
// Переходы достижимости публикуются на шину статуса; trust state
// discovery никогда не трогает.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/vaultsync/internal/crypto"
	"github.com/iudanet/vaultsync/internal/crypto/keystore"
	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/registry"
	"github.com/iudanet/vaultsync/internal/status"
	"github.com/iudanet/vaultsync/internal/transport"
)

const (
	// DefaultInterval период между раундами probe
	DefaultInterval = 15 * time.Second

	// defaultSweepInterval минимальная пауза между сканами подсети для
	// одного peer: сканирование на порядки дороже точечного probe
	defaultSweepInterval = 2 * time.Minute

	// sweepWorkers параллелизм скана подсети
	sweepWorkers = 32
)

// Config собирает зависимости Prober.
type Config struct {
	Self     *models.DeviceIdentity
	Peers    registry.PeerStore
	Keys     keystore.Store
	Client   *transport.Client
	Bus      *status.Bus
	Source   CandidateSource // nil отключает сканирование подсети
	Logger   *slog.Logger
	Interval time.Duration
}

// Prober представляет цикл обнаружения peer-ов.
type Prober struct {
	self     *models.DeviceIdentity
	peers    registry.PeerStore
	keys     keystore.Store
	client   *transport.Client
	bus      *status.Bus
	source   CandidateSource
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	online    map[string]bool
	lastSweep map[string]time.Time
}

// NewProber создает prober.
func NewProber(cfg Config) *Prober {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Prober{
		self:      cfg.Self,
		peers:     cfg.Peers,
		keys:      cfg.Keys,
		client:    cfg.Client,
		bus:       cfg.Bus,
		source:    cfg.Source,
		logger:    cfg.Logger,
		interval:  interval,
		online:    make(map[string]bool),
		lastSweep: make(map[string]time.Time),
	}
}

// Run крутит раунды probe до отмены ctx.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.ProbeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll выполняет один раунд: probe каждого trusted peer.
func (p *Prober) ProbeAll(ctx context.Context) {
	peers, err := p.peers.ListPeers(ctx)
	if err != nil {
		p.logger.Error("failed to list peers for discovery", "error", err)
		return
	}

	for _, peer := range peers {
		if !peer.Trusted() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		p.probePeer(ctx, peer)
	}
}

// probePeer проверяет достижимость одного peer: сначала по hint, при
// неудаче — сканом подсети (не чаще defaultSweepInterval).
func (p *Prober) probePeer(ctx context.Context, peer *models.PeerDevice) {
	token, err := p.token(peer.ID)
	if err != nil {
		p.logger.Warn("cannot issue probe token", "peer_id", peer.ID, "error", err)
		return
	}

	if peer.AddrHint != "" && p.tryAddr(ctx, peer, peer.AddrHint, token) {
		return
	}

	if addr, ok := p.sweep(ctx, peer, token); ok {
		p.markOnline(ctx, peer, addr)
		return
	}

	p.markOffline(ctx, peer)
}

// tryAddr делает один probe и сверяет, что на адресе именно этот peer.
func (p *Prober) tryAddr(ctx context.Context, peer *models.PeerDevice, addr, token string) bool {
	resp, err := p.client.Ping(ctx, addr, token)
	if err != nil {
		return false
	}
	if resp.DeviceID != peer.ID {
		// По адресу теперь другое устройство: hint устарел.
		p.logger.Info("address hint points to a different device",
			"peer_id", peer.ID, "addr", addr, "found", resp.DeviceID)
		return false
	}
	p.markOnline(ctx, peer, addr)
	return true
}

// sweep сканирует кандидатов подсети в поисках peer.
func (p *Prober) sweep(ctx context.Context, peer *models.PeerDevice, token string) (string, bool) {
	if p.source == nil || !p.sweepDue(peer.ID) {
		return "", false
	}

	candidates, err := p.source.Candidates()
	if err != nil {
		p.logger.Warn("failed to enumerate sweep candidates", "error", err)
		return "", false
	}
	p.logger.Info("sweeping subnet for peer", "peer_id", peer.ID, "candidates", len(candidates))

	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan string)
	found := make(chan string, 1)
	var wg sync.WaitGroup

	for i := 0; i < sweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range work {
				resp, err := p.client.Ping(sweepCtx, addr, token)
				if err != nil || resp.DeviceID != peer.ID {
					continue
				}
				select {
				case found <- addr:
					cancel()
				default:
				}
				return
			}
		}()
	}

feed:
	for _, addr := range candidates {
		select {
		case work <- addr:
		case <-sweepCtx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	select {
	case addr := <-found:
		return addr, true
	default:
		return "", false
	}
}

// sweepDue проверяет и обновляет троттлинг скана для peer.
func (p *Prober) sweepDue(peerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastSweep[peerID]) < defaultSweepInterval {
		return false
	}
	p.lastSweep[peerID] = time.Now()
	return true
}

// markOnline фиксирует достижимость и публикует переход offline→online.
func (p *Prober) markOnline(ctx context.Context, peer *models.PeerDevice, addr string) {
	if err := p.peers.UpdatePresence(ctx, peer.ID, true, addr, time.Now()); err != nil {
		p.logger.Error("failed to update presence", "peer_id", peer.ID, "error", err)
	}

	p.mu.Lock()
	was := p.online[peer.ID]
	p.online[peer.ID] = true
	p.mu.Unlock()

	if !was {
		p.logger.Info("peer online", "peer_id", peer.ID, "addr", addr)
		p.bus.Publish(status.Event{Kind: status.KindPeerOnline, PeerID: peer.ID})
	}
}

// markOffline фиксирует недостижимость и публикует переход online→offline.
// Последний известный hint сохраняется: он первый кандидат следующего раунда.
func (p *Prober) markOffline(ctx context.Context, peer *models.PeerDevice) {
	if err := p.peers.UpdatePresence(ctx, peer.ID, false, peer.AddrHint, time.Now()); err != nil {
		p.logger.Error("failed to update presence", "peer_id", peer.ID, "error", err)
	}

	p.mu.Lock()
	was := p.online[peer.ID]
	p.online[peer.ID] = false
	p.mu.Unlock()

	if was {
		p.logger.Info("peer offline", "peer_id", peer.ID)
		p.bus.Publish(status.Event{Kind: status.KindPeerOffline, PeerID: peer.ID})
	}
}

// token выписывает probe token для peer.
func (p *Prober) token(peerID string) (string, error) {
	pairingKey, err := p.keys.Get(keystore.PairingKeyName(peerID))
	if err != nil {
		return "", err
	}
	tokenKey, err := crypto.DeriveTokenKey(pairingKey)
	if err != nil {
		return "", err
	}
	return transport.IssueToken(tokenKey, p.self.ID, peerID)
}
