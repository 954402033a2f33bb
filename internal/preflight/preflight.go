// Package preflight checks that the remote form is reachable before any
// browser is started.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrUnreachable marks a failed reachability probe.
var ErrUnreachable = errors.New("entry page unreachable")

// Config controls the probe.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// Marker, when set, must appear in the response body.
	Marker string
}

// Report describes a successful probe.
type Report struct {
	URL        string
	StatusCode int
	Bytes      int
	Duration   time.Duration
}

// Check performs one GET of cfg.URL with colly.
func Check(ctx context.Context, cfg Config) (Report, error) {
	if cfg.URL == "" {
		return Report{}, errors.New("preflight url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	var (
		report  Report
		respErr error
	)
	start := time.Now()
	c.OnResponse(func(r *colly.Response) {
		report = Report{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Bytes:      len(r.Body),
			Duration:   time.Since(start),
		}
		if cfg.Marker != "" && !strings.Contains(string(r.Body), cfg.Marker) {
			respErr = fmt.Errorf("response lacks marker %q", cfg.Marker)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			respErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		respErr = err
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(cfg.URL) }()

	select {
	case <-ctx.Done():
		return Report{}, fmt.Errorf("%w: %w", ErrUnreachable, ctx.Err())
	case err := <-done:
		if err == nil {
			err = respErr
		}
		if err != nil {
			return Report{}, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
		}
	}
	return report, nil
}
