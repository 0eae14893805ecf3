package service

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// TrackingPrefix: постоянный префикс трек-номера.
const TrackingPrefix = "TRK-"

// TrackingGenerator выдаёт трек-номера вида TRK-<миллисекунды>-<три цифры>.
// Миллисекундная часть строго возрастает в пределах процесса,
// уникальность между процессами обеспечивает ограничение в хранилище.
type TrackingGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTrackingGenerator создаёт генератор на системных часах.
func NewTrackingGenerator() *TrackingGenerator {
	return &TrackingGenerator{now: time.Now}
}

// Next возвращает очередной трек-номер.
func (g *TrackingGenerator) Next() string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	return fmt.Sprintf("%s%d-%03d", TrackingPrefix, ms, rand.IntN(1000))
}
