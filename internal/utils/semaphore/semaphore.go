package semaphore

import (
	"context"
	"errors"
	"time"
)

var ErrAcquireTimeout = errors.New("semaphore acquire timeout exceeded")

// Semaphore bounds the number of store units running at once.
type Semaphore struct {
	semaCh chan struct{}
}

func New(maxInFlight int) *Semaphore {
	return &Semaphore{
		semaCh: make(chan struct{}, max(maxInFlight, 1)),
	}
}

func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err() //nolint: wrapcheck // context error
	case <-timer.C:
		return ErrAcquireTimeout
	case s.semaCh <- struct{}{}:
		return nil
	}
}

func (s *Semaphore) Release() {
	<-s.semaCh
}

func (s *Semaphore) InFlight() int {
	return len(s.semaCh)
}
