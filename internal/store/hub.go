// Package store holds the pieces shared by the document store backends.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

// LoadFunc reads the full ordered posts query.
type LoadFunc func(ctx context.Context) ([]domain.Post, error)

// Hub fans post changes out to subscribers. Every subscriber receives the
// current snapshot on subscribe and one fresh snapshot per burst of
// notifications; notifications that arrive while a snapshot is being built
// coalesce into a single follow-up push.
type Hub struct {
	load LoadFunc
	log  zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func NewHub(load LoadFunc, logger zerolog.Logger) *Hub {
	return &Hub{
		load: load,
		log:  logger.With().Str("component", "post_hub").Logger(),
		subs: make(map[*subscription]struct{}),
	}
}

// Subscribe starts a subscription that lives until ctx ends or Close is called.
func (h *Hub) Subscribe(ctx context.Context) (ports.PostSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, domain.NewBackendError("subscribe posts", context.Canceled)
	}

	sub := &subscription{
		hub:     h,
		out:     make(chan ports.PostSnapshot, 1),
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sub.pending <- struct{}{}
	h.subs[sub] = struct{}{}
	go sub.run(ctx)
	return sub, nil
}

// Notify schedules a snapshot for every subscriber.
func (h *Hub) Notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.pending <- struct{}{}:
		default:
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

type subscription struct {
	hub     *Hub
	out     chan ports.PostSnapshot
	pending chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Snapshots() <-chan ports.PostSnapshot {
	return s.out
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
	return nil
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case <-s.pending:
		}

		posts, err := s.hub.load(ctx)
		snapshot := ports.PostSnapshot{Posts: posts}
		if err != nil {
			s.hub.log.Warn().Err(err).Msg("posts snapshot failed")
			snapshot = ports.PostSnapshot{Err: domain.NewBackendError("load posts", err)}
		}

		select {
		case s.out <- snapshot:
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		}
	}
}
