package stream

import "sync"

// Arbiter guards the single physical camera. It never queues: a caller that
// finds the permit taken gets ErrDeviceBusy immediately.
type Arbiter struct {
	token chan struct{}
}

// Permit is the token handed out by Arbiter.TryAcquire.
type Permit struct {
	arbiter *Arbiter
	once    sync.Once
}

// NewArbiter creates an arbiter with its permit available.
func NewArbiter() *Arbiter {
	return &Arbiter{token: make(chan struct{}, 1)}
}

// TryAcquire takes the permit or fails with ErrDeviceBusy without blocking.
func (a *Arbiter) TryAcquire() (*Permit, error) {
	select {
	case a.token <- struct{}{}:
		return &Permit{arbiter: a}, nil
	default:
		return nil, ErrDeviceBusy
	}
}

// Release returns p to the arbiter. Releasing nil or an already released permit is a no-op.
func (a *Arbiter) Release(p *Permit) {
	p.Release()
}

// Busy reports whether the permit is currently held.
func (a *Arbiter) Busy() bool {
	return len(a.token) == 1
}

// Release frees the permit exactly once.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		<-p.arbiter.token
	})
}
