package syncer

import (
	"fmt"

	"github.com/iudanet/vaultsync/internal/models"
)

// Resolver выбирает победителя из двух конкурирующих версий одной записи.
// Политика задается на уровне развертывания; решение детерминировано, поэтому
// обе стороны конфликта независимо приходят к одному содержимому.
type Resolver struct {
	policy models.ConflictPolicy
}

// NewResolver создает resolver с заданной политикой.
func NewResolver(policy models.ConflictPolicy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy возвращает действующую политику.
func (r *Resolver) Policy() models.ConflictPolicy {
	return r.policy
}

// Resolve возвращает победившую версию (копию одного из входов).
// Для PolicyManual возвращает ErrManualPending: конфликт паркуется и ждет
// явного выбора пользователя.
func (r *Resolver) Resolve(local, remote *models.VaultChangeRecord) (*models.VaultChangeRecord, error) {
	switch r.policy {
	case models.PolicyLastWriteWins:
		return lastWriteWins(local, remote).Clone(), nil
	case models.PolicyPreferLocal:
		return local.Clone(), nil
	case models.PolicyPreferRemote:
		return remote.Clone(), nil
	case models.PolicyManual:
		return nil, ErrManualPending
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", r.policy)
	}
}

// lastWriteWins сравнивает wall-clock подсказки; при равных — id устройства.
// Тотальный порядок: любой набор устройств сходится к одному победителю.
func lastWriteWins(local, remote *models.VaultChangeRecord) *models.VaultChangeRecord {
	if local.ClockHint != remote.ClockHint {
		if local.ClockHint > remote.ClockHint {
			return local
		}
		return remote
	}
	if local.DeviceID > remote.DeviceID {
		return local
	}
	return remote
}
