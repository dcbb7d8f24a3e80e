package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/transport"
	"github.com/iudanet/vaultsync/pkg/api"
)

func newSessionID() string {
	return uuid.NewString()
}

// runSession исполняет одну сессию от лица инициатора:
// negotiate → pull дельты peer → push нашей дельты. Обрыв на любом шаге
// оставляет уже примененные записи durable; watermark продвинут ровно до
// них, следующая сессия продолжит с места обрыва.
func (m *Manager) runSession(ctx context.Context, peer *models.PeerDevice, sess *models.SyncSession) error {
	if peer.AddrHint == "" {
		return fmt.Errorf("%w: no known address for peer %s", transport.ErrUnreachable, peer.ID)
	}

	recordKey, tokenKey, err := m.peerKeys(peer.ID)
	if err != nil {
		return err
	}
	token, err := transport.IssueToken(tokenKey, m.self.ID, peer.ID)
	if err != nil {
		return err
	}

	m.setState(sess, models.SessionNegotiating)

	policy, err := m.policies.GetPolicy(ctx, peer.ID)
	if err != nil {
		return err
	}
	offer, err := m.buildOffer(ctx, peer.ID, policy)
	if err != nil {
		return err
	}
	if len(offer) == 0 {
		m.logger.Info("no vaults enabled for peer, nothing to sync", "peer_id", peer.ID)
		return nil
	}

	resp, err := m.client.Negotiate(ctx, peer.AddrHint, token, api.NegotiateRequest{
		SchemaVersion: api.SchemaVersion,
		SessionID:     sess.ID,
		DeviceID:      m.self.ID,
		Vaults:        offer,
	})
	if err != nil {
		return err
	}

	// Пересечение: vault участвует, только если разрешен политиками обеих
	// сторон. peerAck — как далеко peer прочитал наш журнал.
	peerAck := make(map[string]int64, len(resp.Vaults))
	for _, vc := range resp.Vaults {
		peerAck[vc.VaultID] = vc.Cursor
	}
	for _, vc := range offer {
		if _, ok := peerAck[vc.VaultID]; ok {
			sess.Vaults = append(sess.Vaults, vc.VaultID)
		}
	}
	sort.Strings(sess.Vaults)

	m.setState(sess, models.SessionTransferring)
	parked := false
	for _, vaultID := range sess.Vaults {
		vaultParked, err := m.pullVault(ctx, peer, sess, vaultID, peerAck[vaultID], token, recordKey)
		if err != nil {
			return fmt.Errorf("%w: pull vault %s: %w", ErrTransferIncomplete, vaultID, err)
		}
		parked = parked || vaultParked
	}

	m.setState(sess, models.SessionResolving)
	if parked {
		m.logger.Info("session has conflicts awaiting manual resolution",
			"peer_id", peer.ID, "session_id", sess.ID)
	}

	m.setState(sess, models.SessionCommitting)
	for _, vaultID := range sess.Vaults {
		if err := m.pushVault(ctx, peer, sess, vaultID, peerAck[vaultID], token, recordKey); err != nil {
			return fmt.Errorf("%w: push vault %s: %w", ErrTransferIncomplete, vaultID, err)
		}
	}
	return nil
}

// buildOffer собирает наши watermark-курсоры по vault, разрешенным
// selective sync для peer.
func (m *Manager) buildOffer(ctx context.Context, peerID string, policy *models.PeerPolicy) ([]api.VaultCursor, error) {
	vaultIDs := make([]string, 0, len(policy.EnabledVaults))
	for id, enabled := range policy.EnabledVaults {
		if enabled {
			vaultIDs = append(vaultIDs, id)
		}
	}
	sort.Strings(vaultIDs)

	offer := make([]api.VaultCursor, 0, len(vaultIDs))
	for _, id := range vaultIDs {
		cursor, err := m.marks.GetWatermark(ctx, peerID, id)
		if err != nil {
			return nil, err
		}
		offer = append(offer, api.VaultCursor{VaultID: id, Cursor: cursor})
	}
	return offer, nil
}

// pullVault постранично забирает и применяет дельту журнала peer по vault.
// Возвращает true, если vault остановлен на manual-конфликте.
func (m *Manager) pullVault(ctx context.Context, peer *models.PeerDevice, sess *models.SyncSession, vaultID string, peerAck int64, token string, recordKey []byte) (bool, error) {
	cursor, err := m.marks.GetWatermark(ctx, peer.ID, vaultID)
	if err != nil {
		return false, err
	}

	for {
		page, err := m.client.PullChanges(ctx, peer.AddrHint, token, sess.ID, vaultID, cursor, pageLimit)
		if err != nil {
			return false, err
		}
		if len(page.Entries) == 0 {
			return false, nil
		}

		res, err := m.applyEntries(ctx, peer.ID, vaultID, peerAck, page.Entries, recordKey)
		if err != nil {
			return false, err
		}
		sess.Transferred += res.applied
		sess.Conflicts += res.conflicts
		m.publishSession(sess)

		if res.parked {
			return true, nil
		}
		cursor = page.Entries[len(page.Entries)-1].Seq
		if len(page.Entries) < pageLimit {
			return false, nil
		}
	}
}

// pushVault постранично отдает peer-у нашу дельту от его курсора.
func (m *Manager) pushVault(ctx context.Context, peer *models.PeerDevice, sess *models.SyncSession, vaultID string, theirCursor int64, token string, recordKey []byte) error {
	for {
		entries, err := m.log.ChangesSince(ctx, vaultID, theirCursor, pageLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		wire := make([]api.ChangeRecord, 0, len(entries))
		for _, rec := range entries {
			wire = append(wire, toWire(rec, recordKey))
		}

		resp, err := m.client.PushChanges(ctx, peer.AddrHint, token, api.PushRequest{
			SchemaVersion: api.SchemaVersion,
			SessionID:     sess.ID,
			VaultID:       vaultID,
			Entries:       wire,
		})
		if err != nil {
			return err
		}

		sess.Transferred += resp.Applied
		sess.Conflicts += resp.Conflicts
		m.publishSession(sess)

		theirCursor = entries[len(entries)-1].Seq
		if len(entries) < pageLimit {
			return nil
		}
	}
}
