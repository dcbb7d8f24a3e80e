package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/registry"
)

const identityKey = "self"

// SaveIdentity сохраняет идентичность устройства
func (s *Storage) SaveIdentity(ctx context.Context, identity *models.DeviceIdentity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIdentity).Put([]byte(identityKey), data)
	})
}

// GetIdentity возвращает идентичность устройства
func (s *Storage) GetIdentity(ctx context.Context) (*models.DeviceIdentity, error) {
	var identity models.DeviceIdentity
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIdentity).Get([]byte(identityKey))
		if data == nil {
			return registry.ErrIdentityNotFound
		}
		return json.Unmarshal(data, &identity)
	})
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// SavePaired фиксирует успешный pairing. Peer записывается как trusted
// независимо от прежнего состояния: успешный pairing — единственный
// легальный путь из revoked обратно в trusted.
func (s *Storage) SavePaired(ctx context.Context, peer *models.PeerDevice) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPeers)

		stored := *peer
		stored.Trust = models.TrustTrusted
		if stored.PairedAt.IsZero() {
			stored.PairedAt = time.Now().UTC()
		}

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal peer: %w", err)
		}
		return b.Put([]byte(peer.ID), data)
	})
}

// GetPeer возвращает peer по id
func (s *Storage) GetPeer(ctx context.Context, id string) (*models.PeerDevice, error) {
	var peer models.PeerDevice
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPeers).Get([]byte(id))
		if data == nil {
			return registry.ErrPeerNotFound
		}
		return json.Unmarshal(data, &peer)
	})
	if err != nil {
		return nil, err
	}
	return &peer, nil
}

// ListPeers возвращает все известные peer-ы, включая revoked
func (s *Storage) ListPeers(ctx context.Context) ([]*models.PeerDevice, error) {
	var peers []*models.PeerDevice
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, v []byte) error {
			var peer models.PeerDevice
			if err := json.Unmarshal(v, &peer); err != nil {
				return fmt.Errorf("failed to unmarshal peer %s: %w", k, err)
			}
			peers = append(peers, &peer)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return peers, nil
}

// RenamePeer меняет отображаемое имя peer
func (s *Storage) RenamePeer(ctx context.Context, id, name string) error {
	if err := models.ValidateDeviceName(name); err != nil {
		return err
	}
	return s.updatePeer(id, func(peer *models.PeerDevice) error {
		peer.Name = name
		return nil
	})
}

// RevokePeer переводит peer trusted→revoked
func (s *Storage) RevokePeer(ctx context.Context, id string) error {
	return s.updatePeer(id, func(peer *models.PeerDevice) error {
		if !peer.Trust.CanTransition(models.TrustRevoked) {
			return fmt.Errorf("%w: %s -> %s", registry.ErrTrustTransition, peer.Trust, models.TrustRevoked)
		}
		peer.Trust = models.TrustRevoked
		peer.Online = false
		return nil
	})
}

// UpdatePresence обновляет достижимость и address hint peer
func (s *Storage) UpdatePresence(ctx context.Context, id string, online bool, addrHint string, seenAt time.Time) error {
	return s.updatePeer(id, func(peer *models.PeerDevice) error {
		peer.Online = online
		if online {
			peer.LastSeenAt = seenAt
			if addrHint != "" {
				peer.AddrHint = addrHint
			}
		}
		return nil
	})
}

// updatePeer применяет мутацию к peer внутри одной write-транзакции.
func (s *Storage) updatePeer(id string, fn func(*models.PeerDevice) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		data := b.Get([]byte(id))
		if data == nil {
			return registry.ErrPeerNotFound
		}

		var peer models.PeerDevice
		if err := json.Unmarshal(data, &peer); err != nil {
			return fmt.Errorf("failed to unmarshal peer: %w", err)
		}

		if err := fn(&peer); err != nil {
			return err
		}

		updated, err := json.Marshal(&peer)
		if err != nil {
			return fmt.Errorf("failed to marshal peer: %w", err)
		}
		return b.Put([]byte(id), updated)
	})
}
