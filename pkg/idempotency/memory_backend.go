package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps claims in process memory. Expired entries are dropped
// lazily on access and by Sweep.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBackend) SetNX(ctx context.Context, key, _ string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if exp, ok := b.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	b.entries[key] = now.Add(ttl)
	return true, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	exp, ok := b.entries[key]
	if ok && !b.now().Before(exp) {
		delete(b.entries, key)
		return false, nil
	}
	return ok, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

// Sweep removes expired claims and returns how many were dropped.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	n := 0
	for k, exp := range b.entries {
		if !now.Before(exp) {
			delete(b.entries, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (b *MemoryBackend) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Sweep()
		}
	}
}
