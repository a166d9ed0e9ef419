package jwt

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocations keeps revoked token IDs in process memory. It is used
// when no Redis address is configured; revocations are lost on restart and
// not shared between instances.
type MemoryRevocations struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{until: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.until[jti] = until
	r.sweep()
	return nil
}

func (r *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.until[jti]
	return ok && r.now().Before(until), nil
}

// sweep drops entries whose tokens can no longer be presented.
func (r *MemoryRevocations) sweep() {
	now := r.now()
	for jti, until := range r.until {
		if !now.Before(until) {
			delete(r.until, jti)
		}
	}
}
