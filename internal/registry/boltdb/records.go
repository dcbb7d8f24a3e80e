package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/vaultsync/internal/models"
)

// Материализованное состояние записей: текущая (самая высокая) версия каждой
// записи vault. Это default-реализация внешнего LocalRecordStore для демона;
// приложение с собственным хранилищем записей подставляет свое.

func recordKey(vaultID, recordID string) []byte {
	return []byte(vaultID + "/" + recordID)
}

// ApplyChange durably применяет запись к материализованному состоянию.
// Более старая версия поверх более новой молча игнорируется — apply
// идемпотентен при повторной доставке.
func (s *Storage) ApplyChange(ctx context.Context, record *models.VaultChangeRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		key := recordKey(record.VaultID, record.RecordID)

		if data := b.Get(key); data != nil {
			var current models.VaultChangeRecord
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("failed to unmarshal current record: %w", err)
			}
			if !record.Dominates(&current) {
				return nil
			}
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return b.Put(key, data)
	})
}

// CurrentVersion возвращает версию текущего состояния записи
// (0, если записи нет).
func (s *Storage) CurrentVersion(ctx context.Context, vaultID, recordID string) (int64, error) {
	var version int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get(recordKey(vaultID, recordID))
		if data == nil {
			return nil
		}
		var record models.VaultChangeRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		version = record.Version
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
