package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter refuses sign-in for a key once its failures drain a token
// bucket of max tokens refilled over window.
type attemptLimiter struct {
	max   int
	every rate.Limit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newAttemptLimiter(max int, window time.Duration, now func() time.Time) *attemptLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		max:     max,
		every:   rate.Every(window / time.Duration(max)),
		now:     now,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		return true
	}
	tokens := bucket.TokensAt(l.now())
	if tokens >= float64(l.max) {
		delete(l.buckets, key)
	}
	return tokens >= 1
}

func (l *attemptLimiter) Fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.every, l.max)
		l.buckets[key] = bucket
	}
	bucket.AllowN(l.now(), 1)
}

func (l *attemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
