package service

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterStore manages per-device rate limiters: device code -> limiter.
// A nil store allows everything.
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewRateLimiterStore returns nil when perSecond <= 0, which disables throttling
func NewRateLimiterStore(perSecond float64, burst int) *RateLimiterStore {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(perSecond),
		defaultBurst: burst,
	}
}

func (s *RateLimiterStore) GetLimiter(deviceCode string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[deviceCode]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[deviceCode] = limiter
	}
	return limiter
}

// Allow reports whether a live update for the device may be sent now
func (s *RateLimiterStore) Allow(deviceCode string) bool {
	if s == nil {
		return true
	}
	return s.GetLimiter(deviceCode).Allow()
}
