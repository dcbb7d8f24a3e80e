// Package status реализует отчет о состоянии синхронизации: fan-out шину
// событий, на которую UI/CLI подписывается за прогрессом сессий и
// переходами достижимости peer-ов. Подписчики независимы и перезапускаемы;
// медленный подписчик никогда не блокирует оркестратор — при переполнении
// его буфера событие для него молча теряется.
package status

import (
	"sync"
	"time"

	"github.com/iudanet/vaultsync/internal/models"
)

// EventKind представляет тип события шины.
type EventKind string

const (
	// KindSession переход состояния sync-сессии
	KindSession EventKind = "session"
	// KindPeerOnline peer стал достижим
	KindPeerOnline EventKind = "peer_online"
	// KindPeerOffline peer перестал быть достижим
	KindPeerOffline EventKind = "peer_offline"
	// KindPairing результат pairing (успех или причина неудачи)
	KindPairing EventKind = "pairing"
	// KindConflict конфликт ждет ручного разрешения
	KindConflict EventKind = "conflict"
)

// Event представляет одно наблюдаемое событие движка.
type Event struct {
	Time     time.Time            `json:"time"`
	Kind     EventKind            `json:"kind"`
	PeerID   string               `json:"peer_id,omitempty"`
	Session  *models.SyncSession  `json:"session,omitempty"`  // для KindSession
	Conflict *models.ConflictCase `json:"conflict,omitempty"` // для KindConflict
	Err      string               `json:"err,omitempty"`
}

// subscriberBuffer емкость канала подписчика
const subscriberBuffer = 64

// Bus представляет fan-out шину событий.
type Bus struct {
	subscribers map[int]chan Event
	nextID      int
	mu          sync.Mutex
	closed      bool
}

// NewBus создает пустую шину.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan Event)}
}

// Subscribe создает нового подписчика. Возвращенный канал получает все
// события с этого момента; cancel отписывает и закрывает канал.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish рассылает событие всем подписчикам без блокировки.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Подписчик не успевает — событие для него теряется.
		}
	}
}

// Close закрывает шину и каналы всех подписчиков.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
