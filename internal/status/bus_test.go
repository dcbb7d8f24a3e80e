package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/models"
)

func TestBus_FanOutInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	states := []models.SessionState{
		models.SessionNegotiating,
		models.SessionTransferring,
		models.SessionCompleted,
	}
	for _, s := range states {
		bus.Publish(Event{
			Kind:    KindSession,
			PeerID:  "peer-1",
			Session: &models.SyncSession{PeerID: "peer-1", State: s},
		})
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		for _, want := range states {
			select {
			case got := <-ch:
				assert.Equal(t, want, got.Session.State)
				assert.False(t, got.Time.IsZero())
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for event")
			}
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publish после отписки не паникует и никуда не доставляется.
	bus.Publish(Event{Kind: KindPeerOnline, PeerID: "peer-1"})
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Подписчик, который никогда не читает.
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{Kind: KindPeerOnline, PeerID: "peer-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_CloseTerminatesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribe после Close возвращает закрытый канал.
	late, _ := bus.Subscribe()
	_, open = <-late
	require.False(t, open)
}
