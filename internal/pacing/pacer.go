// Package pacing spaces out requests to the remote service: a shared token
// bucket caps the aggregate rate across workers and a randomized delay
// separates consecutive records within one worker.
package pacing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/voter-enrichment/internal/random"
)

// Config holds pacing configuration.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// RatePerSecond caps attempts across all workers; zero disables the cap.
	RatePerSecond float64
	Burst         int
}

// Pacer is shared by all workers of a run.
type Pacer struct {
	cfg     Config
	rnd     random.Source
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// New creates a Pacer drawing delays from rnd.
func New(cfg Config, rnd random.Source) *Pacer {
	r := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		cfg:     cfg,
		rnd:     rnd,
		limiter: rate.NewLimiter(r, burst),
		sleep:   Sleep,
	}
}

// Delay draws the next inter-record delay.
func (p *Pacer) Delay() time.Duration {
	return random.Between(p.rnd, p.cfg.MinDelay, p.cfg.MaxDelay)
}

// Wait blocks for a rate token and then a random delay, returning the total
// time spent.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rate limit wait: %w", err)
	}
	if err := p.sleep(ctx, p.Delay()); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
