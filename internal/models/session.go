package models

import "time"

// SessionState представляет состояние sync-сессии.
type SessionState string

const (
	SessionIdle         SessionState = "idle"
	SessionNegotiating  SessionState = "negotiating"
	SessionTransferring SessionState = "transferring"
	SessionResolving    SessionState = "resolving"
	SessionCommitting   SessionState = "committing"
	SessionCompleted    SessionState = "completed"
	SessionFailed       SessionState = "failed"
)

// Terminal сообщает, что сессия завершена и новых переходов не будет.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SyncSession представляет одно исполнение оркестратора для одного peer.
// Для каждого peer id активна максимум одна сессия.
type SyncSession struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	ID          string       `json:"id"`
	PeerID      string       `json:"peer_id"`
	State       SessionState `json:"state"`
	Vaults      []string     `json:"vaults"`      // vault, участвовавшие в сессии
	Transferred int          `json:"transferred"` // durably примененные записи (оба направления)
	Conflicts   int          `json:"conflicts"`   // записи, прошедшие через resolver
	Err         string       `json:"err,omitempty"`
}

// ConflictCase представляет две конкурирующие версии одной записи.
// Разрешается ровно один раз; исход логируется как новая авторитетная
// версия, поэтому при повторном sync конфликт не повторяется.
type ConflictCase struct {
	PeerID string             `json:"peer_id"` // peer, приславший remote-версию
	Local  *VaultChangeRecord `json:"local"`
	Remote *VaultChangeRecord `json:"remote"`
	Winner *VaultChangeRecord `json:"winner,omitempty"` // nil пока не разрешен
}

// ConflictPolicy представляет политику разрешения конфликтов.
// Выбирается на уровне развертывания, не per conflict.
type ConflictPolicy string

const (
	PolicyLastWriteWins ConflictPolicy = "last_write_wins"
	PolicyPreferLocal   ConflictPolicy = "prefer_local"
	PolicyPreferRemote  ConflictPolicy = "prefer_remote"
	PolicyManual        ConflictPolicy = "manual"
)

// TriggerMode представляет режим запуска синхронизации для peer.
type TriggerMode string

const (
	TriggerManual     TriggerMode = "manual"     // только явный вызов
	TriggerInterval   TriggerMode = "interval"   // по таймеру
	TriggerBackground TriggerMode = "background" // при появлении peer в сети
)

// PeerPolicy представляет конфигурацию selective sync для одного peer:
// какие vault участвуют в сессиях и по какому триггеру они запускаются.
// Отсутствие vault id в EnabledVaults означает, что этот vault никогда
// не попадает в сессию с этим peer.
type PeerPolicy struct {
	EnabledVaults map[string]bool `json:"enabled_vaults"`
	PeerID        string          `json:"peer_id"`
	Mode          TriggerMode     `json:"mode"`
	Interval      time.Duration   `json:"interval"` // только для TriggerInterval
}

// Enabled сообщает, участвует ли vault в сессиях с этим peer.
func (p *PeerPolicy) Enabled(vaultID string) bool {
	if p == nil {
		return false
	}
	return p.EnabledVaults[vaultID]
}
