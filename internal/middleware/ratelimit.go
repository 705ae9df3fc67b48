package middleware

import (
	"github.com/service-chatbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter guards the knowledge service against submission bursts
// from the interactive loop.
type RateLimiter interface {
	Allow() bool
	Reset()
}

// SubmissionLimiter rate-limits the single client session.
type SubmissionLimiter struct {
	enabled bool
	rpm     int
	burst   int
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewRateLimiter creates a session submission limiter.
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger) RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &SubmissionLimiter{enabled: false}
	}

	rps := float64(cfg.RateLimit.RequestsPerMinute) / 60.0
	return &SubmissionLimiter{
		enabled: true,
		rpm:     cfg.RateLimit.RequestsPerMinute,
		burst:   cfg.RateLimit.Burst,
		limiter: rate.NewLimiter(rate.Limit(rps), cfg.RateLimit.Burst),
		logger:  logger,
	}
}

// Allow checks whether another submission may go out now.
func (s *SubmissionLimiter) Allow() bool {
	if !s.enabled {
		return true
	}

	allowed := s.limiter.Allow()
	if !allowed {
		s.logger.WithField("rpm", s.rpm).Warn("Submission rate limit exceeded")
	}
	return allowed
}

// Reset restores the limiter to a full burst allowance.
func (s *SubmissionLimiter) Reset() {
	if !s.enabled {
		return
	}
	rps := float64(s.rpm) / 60.0
	s.limiter = rate.NewLimiter(rate.Limit(rps), s.burst)
}
