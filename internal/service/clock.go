package service

import (
	"sync"
	"time"
)

// monotonicClock выдаёт строго возрастающие метки с точностью до микросекунды
// (точность timestamptz), чтобы порядок по createdAt совпадал с порядком вставки.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

var clock = &monotonicClock{}

func now() time.Time { return clock.Now() }
