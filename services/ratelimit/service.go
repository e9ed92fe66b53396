package ratelimit

import (
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (r Result) RetryAfterSeconds() int {
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Service keeps one token bucket per model, refilled at perMinute tokens per
// minute. Keys are compared case-insensitively.
type Service struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a limiter allowing perMinute requests per model. A
// non-positive perMinute disables limiting.
func NewService(perMinute, burst int, logger *zap.Logger) *Service {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst < 1 {
		burst = perMinute
	}
	if burst < 1 {
		burst = 1
	}
	return &Service{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
		logger:   logger,
	}
}

// Enabled reports whether the service limits anything
func (s *Service) Enabled() bool {
	return s.limit != rate.Inf
}

// Allow consumes one token for key if available. A denied call consumes
// nothing.
func (s *Service) Allow(key string) Result {
	limiter := s.limiterFor(key)
	now := s.now()

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Result{Allowed: false}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		s.logger.Debug("model request budget exhausted",
			zap.String("model", key),
			zap.Duration("retry_after", delay))
		return Result{Allowed: false, RetryAfter: delay}
	}

	return Result{Allowed: true, Remaining: int(limiter.TokensAt(now))}
}

func (s *Service) limiterFor(key string) *rate.Limiter {
	key = normalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
