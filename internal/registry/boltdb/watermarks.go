package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/vaultsync/internal/models"
)

// watermarkKey строит ключ курсора: peerID/vaultID.
// UUID не содержат '/', поэтому разделитель однозначен.
func watermarkKey(peerID, vaultID string) []byte {
	return []byte(peerID + "/" + vaultID)
}

// GetWatermark возвращает курсор журнала peer для vault (0 по умолчанию)
func (s *Storage) GetWatermark(ctx context.Context, peerID, vaultID string) (int64, error) {
	var cursor int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketWatermarks).Get(watermarkKey(peerID, vaultID))
		if data == nil {
			return nil
		}
		var wm models.SyncWatermark
		if err := json.Unmarshal(data, &wm); err != nil {
			return fmt.Errorf("failed to unmarshal watermark: %w", err)
		}
		cursor = wm.Cursor
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cursor, nil
}

// AdvanceWatermark продвигает курсор вперед. Движение назад игнорируется:
// инвариант монотонности держится на уровне хранилища, а не вызывающего.
func (s *Storage) AdvanceWatermark(ctx context.Context, peerID, vaultID string, cursor int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketWatermarks)
		key := watermarkKey(peerID, vaultID)

		if data := b.Get(key); data != nil {
			var wm models.SyncWatermark
			if err := json.Unmarshal(data, &wm); err != nil {
				return fmt.Errorf("failed to unmarshal watermark: %w", err)
			}
			if cursor <= wm.Cursor {
				return nil
			}
		}

		data, err := json.Marshal(&models.SyncWatermark{
			PeerID:  peerID,
			VaultID: vaultID,
			Cursor:  cursor,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal watermark: %w", err)
		}
		return b.Put(key, data)
	})
}

// ListWatermarks возвращает все курсоры для peer
func (s *Storage) ListWatermarks(ctx context.Context, peerID string) ([]*models.SyncWatermark, error) {
	prefix := []byte(peerID + "/")
	var result []*models.SyncWatermark

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketWatermarks).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var wm models.SyncWatermark
			if err := json.Unmarshal(v, &wm); err != nil {
				return fmt.Errorf("failed to unmarshal watermark %s: %w", k, err)
			}
			result = append(result, &wm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
