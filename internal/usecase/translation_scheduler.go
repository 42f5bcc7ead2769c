package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// translationScheduler owns the single pending translation slot of a caption
// session. Arming replaces whatever is pending; a firing call cancels the
// previous in-flight call so at most one translation reflects the latest text.
type translationScheduler struct {
	debounced func(f func())

	mu       sync.Mutex
	base     context.Context
	stop     context.CancelFunc
	inflight context.CancelFunc
	seq      uint64
}

func newTranslationScheduler(after time.Duration) *translationScheduler {
	base, stop := context.WithCancel(context.Background())
	return &translationScheduler{
		debounced: debounce.New(after),
		base:      base,
		stop:      stop,
	}
}

func (s *translationScheduler) Arm(fn func(ctx context.Context)) {
	s.debounced(func() {
		s.mu.Lock()
		if s.base.Err() != nil {
			s.mu.Unlock()
			return
		}
		if s.inflight != nil {
			s.inflight()
		}
		ctx, cancel := context.WithCancel(s.base)
		s.seq++
		seq := s.seq
		s.inflight = cancel
		s.mu.Unlock()

		fn(ctx)

		s.mu.Lock()
		if s.seq == seq {
			s.inflight = nil
		}
		s.mu.Unlock()
		cancel()
	})
}

// Cancel drops the pending call and aborts the in-flight one.
func (s *translationScheduler) Cancel() {
	s.debounced(func() {})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

func (s *translationScheduler) Close() {
	s.Cancel()
	s.stop()
}
