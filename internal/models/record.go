package models

// VaultChangeRecord представляет одну версионированную мутацию одной записи
// одного vault. Содержимое Data зашифровано внешним vault-шифром до того,
// как попадает в движок синхронизации, и остается непрозрачным.
type VaultChangeRecord struct {
	VaultID   string `json:"vault_id"`
	RecordID  string `json:"record_id"`
	DeviceID  string `json:"device_id"`  // устройство, породившее версию
	Version   int64  `json:"version"`    // логическая версия, строго растет per record
	Seq       int64  `json:"seq"`        // позиция в локальном журнале (0 до записи)
	Data      []byte `json:"data"`       // шифротекст
	Tombstone bool   `json:"tombstone"`  // soft delete; терминально для записи
	ClockHint int64  `json:"clock_hint"` // unix milli, используется только LWW-резолвером
}

// Dominates сравнивает две версии одной записи в тотальном порядке
// (Version, DeviceID). Согласно LWW-правилу:
// 1. Сначала сравнивается Version (большая выигрывает)
// 2. При равных Version сравнивается DeviceID (лексикографически)
// Возвращает true, если r строго новее other.
func (r *VaultChangeRecord) Dominates(other *VaultChangeRecord) bool {
	if r.Version != other.Version {
		return r.Version > other.Version
	}
	return r.DeviceID > other.DeviceID
}

// SameOrigin сообщает, что обе записи — одна и та же версия от одного
// устройства. Используется для идемпотентного повторного применения.
func (r *VaultChangeRecord) SameOrigin(other *VaultChangeRecord) bool {
	return r.Version == other.Version && r.DeviceID == other.DeviceID
}

// Clone создает глубокую копию записи
func (r *VaultChangeRecord) Clone() *VaultChangeRecord {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)

	out := *r
	out.Data = data
	return &out
}

// SyncWatermark представляет курсор последней durably примененной записи
// из журнала конкретного peer для конкретного vault. Монотонен: никогда
// не уменьшается, обновляется только после локального apply.
type SyncWatermark struct {
	PeerID  string `json:"peer_id"`
	VaultID string `json:"vault_id"`
	Cursor  int64  `json:"cursor"` // позиция в журнале peer
}
