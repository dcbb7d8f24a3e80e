// Package registry определяет интерфейсы устройства-локального хранилища
// движка синхронизации: идентичность устройства, реестр peer-ов с trust state,
// watermark-курсоры и политика selective sync.
package registry

import (
	"context"
	"time"

	"github.com/iudanet/vaultsync/internal/models"
)

//go:generate go tool moq -out registry_mock.go . PeerStore WatermarkStore PolicyStore

// IdentityStore определяет интерфейс хранения собственной идентичности.
type IdentityStore interface {
	// SaveIdentity сохраняет идентичность устройства. Вызывается один раз
	// при первом запуске.
	SaveIdentity(ctx context.Context, identity *models.DeviceIdentity) error

	// GetIdentity возвращает идентичность устройства.
	// Возвращает ErrIdentityNotFound, если устройство еще не инициализировано.
	GetIdentity(ctx context.Context) (*models.DeviceIdentity, error)
}

// PeerStore определяет интерфейс реестра известных устройств.
type PeerStore interface {
	// SavePaired фиксирует успешный pairing: создает peer как trusted или
	// перезаписывает ключевой материал уже известного (в т.ч. revoked) peer.
	// Это единственный путь, которым revoked устройство снова становится
	// trusted.
	SavePaired(ctx context.Context, peer *models.PeerDevice) error

	// GetPeer возвращает peer по id.
	// Возвращает ErrPeerNotFound, если peer неизвестен.
	GetPeer(ctx context.Context, id string) (*models.PeerDevice, error)

	// ListPeers возвращает все известные peer-ы, включая revoked.
	ListPeers(ctx context.Context) ([]*models.PeerDevice, error)

	// RenamePeer меняет отображаемое имя peer.
	RenamePeer(ctx context.Context, id, name string) error

	// RevokePeer переводит peer trusted→revoked (unpair). Запись не
	// удаляется, чтобы отозванное устройство не вернулось незамеченным.
	// Возвращает ErrTrustTransition при недопустимом переходе.
	RevokePeer(ctx context.Context, id string) error

	// UpdatePresence обновляет достижимость и address hint peer по данным
	// discovery. Trust state не трогает.
	UpdatePresence(ctx context.Context, id string, online bool, addrHint string, seenAt time.Time) error
}

// WatermarkStore определяет интерфейс хранения watermark-курсоров.
type WatermarkStore interface {
	// GetWatermark возвращает курсор журнала peer для vault (0, если
	// синхронизации еще не было).
	GetWatermark(ctx context.Context, peerID, vaultID string) (int64, error)

	// AdvanceWatermark продвигает курсор вперед. Движение назад молча
	// игнорируется: watermark монотонен по построению.
	AdvanceWatermark(ctx context.Context, peerID, vaultID string, cursor int64) error

	// ListWatermarks возвращает все курсоры для peer.
	ListWatermarks(ctx context.Context, peerID string) ([]*models.SyncWatermark, error)
}

// PolicyStore определяет интерфейс конфигурации selective sync.
type PolicyStore interface {
	// GetPolicy возвращает политику peer. Если политика не задана,
	// возвращает безопасный default: ни одного vault, режим manual.
	GetPolicy(ctx context.Context, peerID string) (*models.PeerPolicy, error)

	// SetVaultEnabled включает или выключает vault для peer.
	SetVaultEnabled(ctx context.Context, peerID, vaultID string, enabled bool) error

	// SetTriggerMode задает режим запуска синхронизации для peer.
	SetTriggerMode(ctx context.Context, peerID string, mode models.TriggerMode, interval time.Duration) error
}
