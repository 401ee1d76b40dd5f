package throttle

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemorySize = 10_000

// Memory keeps last-request timestamps in a bounded LRU whose entries
// expire after the interval, so abandoned emails do not accumulate.
type Memory struct {
	interval time.Duration
	entries  *lru.LRU[string, time.Time]
	now      func() time.Time
}

var _ Throttle = (*Memory)(nil)

func NewMemory(interval time.Duration, size int) *Memory {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if size <= 0 {
		size = defaultMemorySize
	}
	return &Memory{
		interval: interval,
		entries:  lru.NewLRU[string, time.Time](size, nil, interval),
		now:      time.Now,
	}
}

func (m *Memory) Wait(_ context.Context, key string) (time.Duration, error) {
	last, ok := m.entries.Get(NormalizeKey(key))
	if !ok {
		return 0, nil
	}
	if wait := m.interval - m.now().Sub(last); wait > 0 {
		return wait, nil
	}
	return 0, nil
}

func (m *Memory) Touch(_ context.Context, key string) error {
	m.entries.Add(NormalizeKey(key), m.now())
	return nil
}
