// Package changelog определяет интерфейс журнала изменений vault:
// append-only лог версионированных мутаций, из которого считаются дельты
// для синхронизации. Каждая запись получает монотонную позицию Seq в
// локальном журнале; peer-ы используют Seq как watermark-курсор.
package changelog

import (
	"context"
	"errors"

	"github.com/iudanet/vaultsync/internal/models"
)

//go:generate go tool moq -out changelog_mock.go . Log

// Common changelog errors
var (
	// ErrRecordNotFound означает, что у записи нет ни одной версии в журнале
	ErrRecordNotFound = errors.New("change record not found")

	// ErrTombstoned означает попытку записать новую версию поверх tombstone
	ErrTombstoned = errors.New("record is tombstoned")
)

// Log определяет интерфейс журнала изменений.
type Log interface {
	// AppendLocal добавляет локальную правку. Версию назначает журнал:
	// строго больше и последней локальной, и самой высокой наблюдавшейся
	// версии этой записи. Возвращает запись с заполненными Version и Seq.
	// Возвращает ErrTombstoned, если запись уже удалена и это не tombstone.
	AppendLocal(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error)

	// AppendResolution добавляет исход разрешения конфликта как новую
	// авторитетную локальную версию, доминирующую обе входные. В отличие от
	// AppendLocal не проверяет tombstone: resolver вправе и похоронить, и
	// воскресить запись — в обоих случаях новой версией.
	AppendResolution(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error)

	// AppendRemote добавляет запись, полученную от peer, с её исходными
	// Version и DeviceID. Повторная доставка той же версии идемпотентна.
	// Возвращает запись с локальным Seq.
	AppendRemote(ctx context.Context, record *models.VaultChangeRecord) (*models.VaultChangeRecord, error)

	// ChangesSince возвращает записи журнала vault с позицией строго больше
	// cursor, упорядоченные по возрастанию Seq, не более limit штук
	// (limit <= 0 — без ограничения).
	ChangesSince(ctx context.Context, vaultID string, cursor int64, limit int) ([]*models.VaultChangeRecord, error)

	// Head возвращает текущую версию записи — самую высокую в порядке
	// (Version, DeviceID). Возвращает ErrRecordNotFound, если версий нет.
	Head(ctx context.Context, vaultID, recordID string) (*models.VaultChangeRecord, error)

	// HeadSeq возвращает последнюю позицию журнала vault (0 для пустого).
	HeadSeq(ctx context.Context, vaultID string) (int64, error)

	// Vaults возвращает id всех vault, встречающихся в журнале.
	Vaults(ctx context.Context) ([]string, error)

	// Close releases the underlying database.
	Close() error
}
