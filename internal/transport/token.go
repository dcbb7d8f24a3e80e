package transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Peer session tokens: короткоживущие HS256 JWT, подписанные ключом,
// выведенным из долговременного pairing key пары устройств. Владение
// валидным токеном доказывает, что отправитель прошел pairing с нами.

// TokenTTL время жизни peer session token. Токен выписывается заново на
// каждую сессию, поэтому TTL короткий.
const TokenTTL = 2 * time.Minute

// IssueToken выписывает session token от selfID к peerID, подписанный
// tokenKey (см. crypto.DeriveTokenKey).
func IssueToken(tokenKey []byte, selfID, peerID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    selfID,
		Subject:   peerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// KeyLookup возвращает token key для устройства-издателя.
// Ошибка означает, что издатель неизвестен или не trusted.
type KeyLookup func(issuerID string) ([]byte, error)

// VerifyToken проверяет подпись и срок токена и что он адресован selfID.
// Возвращает id устройства-издателя.
func VerifyToken(tokenString, selfID string, lookup KeyLookup) (string, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			tc, ok := token.Claims.(*jwt.RegisteredClaims)
			if !ok || tc.Issuer == "" {
				return nil, fmt.Errorf("token has no issuer")
			}
			return lookup(tc.Issuer)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}

	if claims.Subject != selfID {
		return "", fmt.Errorf("token addressed to %q, not us", claims.Subject)
	}
	return claims.Issuer, nil
}
