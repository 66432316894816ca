// Package governor throttles outbound snapshot/fallback requests so the
// aggregate rate stays safely below the venue's published ceiling.
package governor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"depthwatch/internal/types"
)

// Config mirrors config.GovernorConfig without importing it.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	QueueTimeout      time.Duration
	QueueWarnDepth    int
}

// Governor is a continuous-rate token limiter shared by every caller that
// hits the venue's REST surface. Tokens refill continuously rather than at
// discrete intervals, which keeps bursty callers fair.
type Governor struct {
	limiter      *rate.Limiter
	queueTimeout time.Duration
	warnDepth    int64
	waiting      atomic.Int64
	log          *logrus.Entry
}

// New creates a governor. Burst defaults to 1 when unset so a single token
// is always obtainable.
func New(cfg Config, logger *logrus.Logger) *Governor {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Governor{
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		queueTimeout: timeout,
		warnDepth:    int64(cfg.QueueWarnDepth),
		log:          logger.WithField("component", "governor"),
	}
}

// Acquire blocks without busy-waiting until a token is available or the
// bounded queue wait elapses. Timeout surfaces as types.ErrRateLimited,
// distinct from any business error; caller cancellation propagates as the
// context error.
func (g *Governor) Acquire(ctx context.Context) error {
	depth := g.waiting.Add(1)
	defer g.waiting.Add(-1)

	if g.warnDepth > 0 && depth > g.warnDepth/2 {
		g.log.WithField("queue_depth", depth).Warn("governor queue filling up")
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.queueTimeout)
	defer cancel()

	if err := g.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return types.ErrRateLimited
		}
		return types.ErrRateLimited
	}
	return nil
}

// QueueDepth returns the number of callers currently waiting for a token.
func (g *Governor) QueueDepth() int {
	return int(g.waiting.Load())
}
