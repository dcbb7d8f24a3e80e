package pairing

import (
	"sync"
	"time"

	"github.com/iudanet/vaultsync/internal/crypto"
)

// SessionTTL фиксированное короткое окно жизни pairing-сессии.
const SessionTTL = 120 * time.Second

// session представляет одну in-flight pairing-сессию на стороне хоста.
// Одноразовая, живет только в памяти процесса и уничтожается после
// успеха, неудачи или истечения срока.
type session struct {
	expiresAt time.Time
	ephemeral *crypto.KeyPair
	nonce     []byte
	consumed  bool
}

func (s *session) expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

// sessionTable хранит активные сессии хоста по base64-nonce.
type sessionTable struct {
	sessions map[string]*session
	mu       sync.Mutex
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

// put регистрирует новую сессию.
func (t *sessionTable) put(nonceKey string, s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[nonceKey] = s
}

// take атомарно забирает сессию для подтверждения: сессия одноразовая,
// второй confirm с тем же nonce уже никого не найдет.
func (t *sessionTable) take(nonceKey string, now time.Time) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[nonceKey]
	if !ok {
		return nil, false
	}
	delete(t.sessions, nonceKey)

	if s.consumed || s.expired(now) {
		return nil, false
	}
	s.consumed = true
	return s, true
}

// drop удаляет сессию, если она еще не подтверждена.
// Возвращает true, если сессия была жива (для события timeout).
func (t *sessionTable) drop(nonceKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[nonceKey]
	if !ok {
		return false
	}
	delete(t.sessions, nonceKey)
	return !s.consumed
}
