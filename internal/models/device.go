package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TrustState представляет состояние доверия к удаленному устройству.
type TrustState string

const (
	TrustPending TrustState = "pending" // pairing начат, но не подтвержден
	TrustTrusted TrustState = "trusted" // pairing завершен, устройство доверенное
	TrustRevoked TrustState = "revoked" // доверие отозвано (unpair)
)

// CanTransition проверяет допустимость перехода trust state.
// Разрешены только pending→trusted и trusted→revoked; обратных переходов нет,
// чтобы отозванное устройство не могло тихо восстановить доверие.
// Новый успешный pairing — единственный путь из revoked обратно в trusted,
// и он идет через отдельный код, а не через этот переход.
func (s TrustState) CanTransition(to TrustState) bool {
	switch {
	case s == TrustPending && to == TrustTrusted:
		return true
	case s == TrustTrusted && to == TrustRevoked:
		return true
	default:
		return false
	}
}

// DeviceIdentity представляет криптографическую идентичность этой установки.
// Генерируется один раз при первом запуске и живет все время жизни приложения;
// приватная половина ключа хранится в keystore, не здесь.
type DeviceIdentity struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`         // стабильный UUID устройства
	Name      string    `json:"name"`       // отображаемое имя
	PublicKey []byte    `json:"public_key"` // долговременный X25519 public key
}

// PeerDevice представляет удаленную установку, известную этой.
// Public key неизменяем после trusted; запись никогда не удаляется физически —
// unpair переводит её в revoked.
type PeerDevice struct {
	PairedAt   time.Time  `json:"paired_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AddrHint   string     `json:"addr_hint"` // последний известный host:port
	Trust      TrustState `json:"trust"`
	PublicKey  []byte     `json:"public_key"`
	Online     bool       `json:"online"` // текущая достижимость по данным discovery
}

// Trusted сообщает, участвует ли peer в discovery и sync.
func (p *PeerDevice) Trusted() bool {
	return p.Trust == TrustTrusted
}

const (
	// MaxDeviceNameLen максимальная длина отображаемого имени устройства
	MaxDeviceNameLen = 64
)

// ValidateDeviceName проверяет отображаемое имя устройства:
// непустое, не длиннее MaxDeviceNameLen, только печатаемые символы.
func ValidateDeviceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}
	if len(name) > MaxDeviceNameLen {
		return fmt.Errorf("device name too long: %d > %d", len(name), MaxDeviceNameLen)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("device name contains non-printable character")
		}
	}
	return nil
}
