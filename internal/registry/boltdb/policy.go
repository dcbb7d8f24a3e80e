package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/vaultsync/internal/models"
)

// defaultPolicy безопасный default: ни одного vault, только ручной запуск.
func defaultPolicy(peerID string) *models.PeerPolicy {
	return &models.PeerPolicy{
		PeerID:        peerID,
		EnabledVaults: make(map[string]bool),
		Mode:          models.TriggerManual,
	}
}

// GetPolicy возвращает политику selective sync для peer
func (s *Storage) GetPolicy(ctx context.Context, peerID string) (*models.PeerPolicy, error) {
	policy := defaultPolicy(peerID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPolicy).Get([]byte(peerID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, policy)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	if policy.EnabledVaults == nil {
		policy.EnabledVaults = make(map[string]bool)
	}
	return policy, nil
}

// SetVaultEnabled включает или выключает vault для peer
func (s *Storage) SetVaultEnabled(ctx context.Context, peerID, vaultID string, enabled bool) error {
	return s.updatePolicy(peerID, func(policy *models.PeerPolicy) {
		if enabled {
			policy.EnabledVaults[vaultID] = true
		} else {
			delete(policy.EnabledVaults, vaultID)
		}
	})
}

// SetTriggerMode задает режим запуска синхронизации для peer
func (s *Storage) SetTriggerMode(ctx context.Context, peerID string, mode models.TriggerMode, interval time.Duration) error {
	return s.updatePolicy(peerID, func(policy *models.PeerPolicy) {
		policy.Mode = mode
		policy.Interval = interval
	})
}

// updatePolicy применяет мутацию к политике внутри одной write-транзакции.
func (s *Storage) updatePolicy(peerID string, fn func(*models.PeerPolicy)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPolicy)

		policy := defaultPolicy(peerID)
		if data := b.Get([]byte(peerID)); data != nil {
			if err := json.Unmarshal(data, policy); err != nil {
				return fmt.Errorf("failed to unmarshal policy: %w", err)
			}
			if policy.EnabledVaults == nil {
				policy.EnabledVaults = make(map[string]bool)
			}
		}

		fn(policy)

		data, err := json.Marshal(policy)
		if err != nil {
			return fmt.Errorf("failed to marshal policy: %w", err)
		}
		return b.Put([]byte(peerID), data)
	})
}
