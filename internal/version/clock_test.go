package version

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	// Обычная локальная правка поверх своей головы.
	assert.Equal(t, int64(1), Next(0, 0))
	assert.Equal(t, int64(4), Next(3, 0))

	// Наблюдали более высокую версию от peer — новая версия доминирует её.
	assert.Equal(t, int64(6), Next(3, 5))

	// Наблюдаемая равна локальной — все равно строго больше обеих.
	assert.Equal(t, int64(4), Next(3, 3))
}

func TestClock_TickAndObserve(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(0), c.Head("v", "r"))
	assert.Equal(t, int64(1), c.Tick("v", "r", 0))
	assert.Equal(t, int64(2), c.Tick("v", "r", 0))

	// Счетчики независимы per record.
	assert.Equal(t, int64(1), c.Tick("v", "other", 0))

	// Observe поднимает голову, но никогда не опускает.
	c.Observe("v", "r", 10)
	assert.Equal(t, int64(10), c.Head("v", "r"))
	c.Observe("v", "r", 4)
	assert.Equal(t, int64(10), c.Head("v", "r"))

	assert.Equal(t, int64(11), c.Tick("v", "r", 0))

	// Пустые часы принимают внешнее наблюдение прямо в Tick.
	fresh := NewClock()
	assert.Equal(t, int64(8), fresh.Tick("v", "r", 7))
	assert.Equal(t, int64(9), fresh.Tick("v", "r", 0))
}

func TestClock_Concurrent(t *testing.T) {
	c := NewClock()

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Tick("v", "r", 0)
		}()
	}
	wg.Wait()
	close(seen)

	// Все выданные версии уникальны.
	unique := make(map[int64]bool)
	for v := range seen {
		assert.False(t, unique[v], "duplicate version %d", v)
		unique[v] = true
	}
	assert.Equal(t, int64(100), c.Head("v", "r"))
}
