// Package crypto реализует криптографические примитивы pairing-обмена:
// X25519 для выработки общего секрета, HKDF-SHA256 для разделения ключей
// и HMAC-SHA256 для подтверждений и аутентичности записей.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize размер ключей X25519 и выведенных симметричных ключей
	KeySize = 32
	// NonceSize размер одноразового nonce pairing-сессии
	NonceSize = 32
)

// HKDF info strings: разные контексты дают криптографически независимые
// ключи из одного общего секрета.
const (
	infoConfirmKey = "vaultsync/v1/confirm"
	infoPairingKey = "vaultsync/v1/pairing"
	infoRecordKey  = "vaultsync/v1/record"
	infoTokenKey   = "vaultsync/v1/token"
)

// KeyPair содержит пару ключей X25519.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair генерирует новую пару ключей X25519.
func GenerateKeyPair() (*KeyPair, error) {
	private := make([]byte, KeySize)
	if _, err := rand.Read(private); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &KeyPair{Public: public, Private: private}, nil
}

// GenerateNonce генерирует криптографически случайный nonce pairing-сессии.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// SharedSecret вычисляет общий секрет X25519 из своего приватного и чужого
// публичного ключа. Обе стороны pairing получают одинаковый результат.
func SharedSecret(private, peerPublic []byte) ([]byte, error) {
	if len(private) != KeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", KeySize, len(private))
	}
	if len(peerPublic) != KeySize {
		return nil, fmt.Errorf("peer public key must be %d bytes, got %d", KeySize, len(peerPublic))
	}

	secret, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519 exchange failed: %w", err)
	}
	return secret, nil
}

// SessionKeys содержит ключи, выведенные из одного pairing-обмена.
// ConfirmKey живет только на время сессии; PairingKey — долговременный
// ключ связи, который обе стороны сохраняют в keystore.
type SessionKeys struct {
	ConfirmKey []byte // MAC подтверждений pairing
	PairingKey []byte // долговременный ключ пары устройств
}

// DeriveSessionKeys выводит ключи сессии из общего секрета и nonce.
// Nonce используется как HKDF salt: повторный pairing тех же устройств
// дает другой набор ключей.
func DeriveSessionKeys(secret, nonce []byte) (*SessionKeys, error) {
	confirm, err := deriveKey(secret, nonce, infoConfirmKey)
	if err != nil {
		return nil, err
	}
	pairing, err := deriveKey(secret, nonce, infoPairingKey)
	if err != nil {
		return nil, err
	}
	return &SessionKeys{ConfirmKey: confirm, PairingKey: pairing}, nil
}

// DeriveRecordKey выводит из долговременного pairing key ключ для
// HMAC-тегов передаваемых записей.
func DeriveRecordKey(pairingKey []byte) ([]byte, error) {
	return deriveKey(pairingKey, nil, infoRecordKey)
}

// DeriveTokenKey выводит из долговременного pairing key ключ для подписи
// peer session token (HS256).
func DeriveTokenKey(pairingKey []byte) ([]byte, error) {
	return deriveKey(pairingKey, nil, infoTokenKey)
}

// deriveKey выводит один 32-байтовый ключ через HKDF-SHA256.
func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf derivation failed: %w", err)
	}
	return key, nil
}

// MAC вычисляет HMAC-SHA256 по конкатенации частей с length-prefix каждой
// части, чтобы границы частей были однозначны.
func MAC(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	var lenBuf [4]byte
	for _, p := range parts {
		lenBuf[0] = byte(len(p) >> 24)
		lenBuf[1] = byte(len(p) >> 16)
		lenBuf[2] = byte(len(p) >> 8)
		lenBuf[3] = byte(len(p))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

// VerifyMAC проверяет HMAC в константное время.
func VerifyMAC(key, expected []byte, parts ...[]byte) bool {
	return hmac.Equal(expected, MAC(key, parts...))
}
