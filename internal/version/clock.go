// Package version реализует пер-записные логические часы для упорядочивания
// правок в распределенной системе без синхронизации физического времени.
// В отличие от глобального Lamport clock, счетчик ведется отдельно для каждой
// пары (vault id, record id): этого достаточно, потому что конфликты
// разрешаются тоже per record.
package version

import "sync"

// Next возвращает следующую логическую версию записи: строго больше и
// последней локальной версии, и самой высокой версии, когда-либо наблюдавшейся
// от любого peer для этой записи. Этот тотальный порядок не дает двум
// устройствам породить одинаковый номер версии поверх разных предков, не
// замеченный tie-break-ом по device id.
func Next(localHead, observed int64) int64 {
	if observed > localHead {
		localHead = observed
	}
	return localHead + 1
}

type recordKey struct {
	vaultID  string
	recordID string
}

// Clock представляет потокобезопасные пер-записные часы. Хранит последнюю
// известную версию каждой записи и выдает следующую при локальной правке.
type Clock struct {
	heads map[recordKey]int64
	mu    sync.Mutex
}

// NewClock создает пустые часы. Состояние восстанавливается лениво:
// вызывающий сообщает известные версии через Observe.
func NewClock() *Clock {
	return &Clock{heads: make(map[recordKey]int64)}
}

// Observe обновляет известную версию записи по полученному событию
// (локальному или от peer). Версия только растет.
func (c *Clock) Observe(vaultID, recordID string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := recordKey{vaultID: vaultID, recordID: recordID}
	if v > c.heads[k] {
		c.heads[k] = v
	}
}

// Tick выдает следующую версию для локальной правки записи и фиксирует её
// как известную. observed передает версию, известную вне часов — голову
// журнала после рестарта процесса, когда часы еще пустые.
func (c *Clock) Tick(vaultID, recordID string, observed int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := recordKey{vaultID: vaultID, recordID: recordID}
	next := Next(c.heads[k], observed)
	c.heads[k] = next
	return next
}

// Head возвращает последнюю известную версию записи (0, если запись
// никогда не наблюдалась).
func (c *Clock) Head(vaultID, recordID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.heads[recordKey{vaultID: vaultID, recordID: recordID}]
}
