package pool

import "context"

// CapabilityLimiter bounds concurrent VAD/ASR/SV capability calls to a fixed
// worker count, generalizing the session manager's single-purpose
// recognition-worker channel to all three capability kinds sharing one pool.
type CapabilityLimiter struct {
	tokens chan struct{}
}

// NewCapabilityLimiter creates a limiter admitting at most n concurrent
// callers.
func NewCapabilityLimiter(n int) *CapabilityLimiter {
	if n <= 0 {
		n = 1
	}
	return &CapabilityLimiter{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a worker slot is free or ctx is cancelled.
func (l *CapabilityLimiter) Acquire(ctx context.Context) error {
	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a worker slot.
func (l *CapabilityLimiter) Release() {
	<-l.tokens
}
