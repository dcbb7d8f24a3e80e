package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/vaultsync/internal/changelog"
	"github.com/iudanet/vaultsync/internal/models"
)

// AppendLocal добавляет локальную правку с назначением версии по часам
// записи: следующая версия строго больше и локальной головы, и всего, что
// наблюдалось от peer-ов. Голова журнала передается часам как внешнее
// наблюдение — она покрывает всё, что было до рестарта процесса.
func (s *Storage) AppendLocal(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error) {
	head, err := s.Head(ctx, record.VaultID, record.RecordID)
	if err != nil && !errors.Is(err, changelog.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check record head: %w", err)
	}

	var headVersion int64
	if head != nil {
		// Tombstone терминален: запись не воскресает локальной правкой.
		if head.Tombstone && !record.Tombstone {
			return nil, changelog.ErrTombstoned
		}
		headVersion = head.Version
	}

	stamped := record.Clone()
	stamped.DeviceID = s.deviceID
	stamped.Version = s.clock.Tick(record.VaultID, record.RecordID, headVersion)
	if stamped.ClockHint == 0 {
		stamped.ClockHint = time.Now().UnixMilli()
	}

	seq, err := s.insert(ctx, stamped)
	if err != nil {
		return nil, err
	}
	stamped.Seq = seq
	return stamped, nil
}

// AppendResolution добавляет исход разрешения конфликта. Версия назначается
// поверх головы записи (обе конфликтующие версии к этому моменту в журнале),
// поэтому результат доминирует обе. Tombstone-guard не применяется.
// Голова перечитывается из журнала только пока часы пустые.
func (s *Storage) AppendResolution(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error) {
	var headVersion int64
	if s.clock.Head(record.VaultID, record.RecordID) == 0 {
		head, err := s.Head(ctx, record.VaultID, record.RecordID)
		if err != nil && !errors.Is(err, changelog.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check record head: %w", err)
		}
		if head != nil {
			headVersion = head.Version
		}
	}

	stamped := record.Clone()
	stamped.DeviceID = s.deviceID
	stamped.Version = s.clock.Tick(record.VaultID, record.RecordID, headVersion)
	if stamped.ClockHint == 0 {
		stamped.ClockHint = time.Now().UnixMilli()
	}

	seq, err := s.insert(ctx, stamped)
	if err != nil {
		return nil, err
	}
	stamped.Seq = seq
	return stamped, nil
}

// AppendRemote добавляет запись от peer с её исходными Version и DeviceID.
// Конфликт по UNIQUE (повторная доставка) не ошибка: возвращается уже
// существующая запись. Версия peer фиксируется в часах, чтобы следующая
// локальная правка её доминировала.
func (s *Storage) AppendRemote(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error) {
	s.clock.Observe(record.VaultID, record.RecordID, record.Version)
	stored := record.Clone()

	seq, err := s.insert(ctx, stored)
	if err == nil {
		stored.Seq = seq
		return stored, nil
	}

	// INSERT OR IGNORE вернул 0 строк — такая версия уже в журнале.
	existing, lookupErr := s.find(ctx, record)
	if lookupErr != nil {
		return nil, fmt.Errorf("failed to append remote record: %w", err)
	}
	return existing, nil
}

var errDuplicate = errors.New("duplicate change record")

// insert пишет запись в журнал и возвращает назначенный Seq.
func (s *Storage) insert(ctx context.Context, record *models.VaultChangeRecord) (int64, error) {
	query := `
		INSERT OR IGNORE INTO changes (
			vault_id, record_id, device_id, version,
			data, tombstone, clock_hint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.VaultID,
		record.RecordID,
		record.DeviceID,
		record.Version,
		record.Data,
		boolToInt(record.Tombstone),
		record.ClockHint,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert change: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return 0, errDuplicate
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get seq: %w", err)
	}
	return seq, nil
}

// find возвращает запись журнала по её происхождению (device id + version).
func (s *Storage) find(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error) {
	query := `
		SELECT seq, vault_id, record_id, device_id, version, data, tombstone, clock_hint
		FROM changes
		WHERE vault_id = ? AND record_id = ? AND device_id = ? AND version = ?
	`
	row := s.db.QueryRowContext(ctx, query, record.VaultID, record.RecordID, record.DeviceID, record.Version)
	return scanChange(row)
}

// ChangesSince возвращает записи с позицией строго больше cursor
func (s *Storage) ChangesSince(ctx context.Context, vaultID string, cursor int64, limit int) ([]*models.VaultChangeRecord, error) {
	query := `
		SELECT seq, vault_id, record_id, device_id, version, data, tombstone, clock_hint
		FROM changes
		WHERE vault_id = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{vaultID, cursor}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.VaultChangeRecord
	for rows.Next() {
		record, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return result, nil
}

// Head возвращает самую высокую версию записи в порядке (Version, DeviceID)
func (s *Storage) Head(ctx context.Context, vaultID, recordID string) (*models.VaultChangeRecord, error) {
	query := `
		SELECT seq, vault_id, record_id, device_id, version, data, tombstone, clock_hint
		FROM changes
		WHERE vault_id = ? AND record_id = ?
		ORDER BY version DESC, device_id DESC
		LIMIT 1
	`
	record, err := scanChange(s.db.QueryRowContext(ctx, query, vaultID, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, changelog.ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

// HeadSeq возвращает последнюю позицию журнала vault
func (s *Storage) HeadSeq(ctx context.Context, vaultID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM changes WHERE vault_id = ?`, vaultID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query head seq: %w", err)
	}
	return seq.Int64, nil
}

// Vaults возвращает id всех vault в журнале
func (s *Storage) Vaults(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT vault_id FROM changes ORDER BY vault_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vault id: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vaults: %w", err)
	}
	return result, nil
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanChange(row scanner) (*models.VaultChangeRecord, error) {
	var record models.VaultChangeRecord
	var tombstone int

	err := row.Scan(
		&record.Seq,
		&record.VaultID,
		&record.RecordID,
		&record.DeviceID,
		&record.Version,
		&record.Data,
		&tombstone,
		&record.ClockHint,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan change: %w", err)
	}

	record.Tombstone = tombstone != 0
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
