package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp/kb"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/random"
)

// Typing modes.
const (
	ModeHuman = "human"
	ModePaste = "paste"
)

// TypingConfig controls how field values are entered.
type TypingConfig struct {
	Mode     string
	MinDelay time.Duration
	MaxDelay time.Duration
	// TypoRate is the per-character probability of a corrected typo.
	TypoRate float64
}

const typoAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Typist enters text into page fields.
type Typist struct {
	cfg   TypingConfig
	rnd   random.Source
	sleep func(context.Context, time.Duration) error
}

// NewTypist creates a Typist drawing delays and typos from rnd.
func NewTypist(cfg TypingConfig, rnd random.Source, sleep func(context.Context, time.Duration) error) *Typist {
	if cfg.Mode == "" {
		cfg.Mode = ModeHuman
	}
	return &Typist{cfg: cfg, rnd: rnd, sleep: sleep}
}

// Type enters value into selector. In human mode every character is a
// separate key event followed by a random pause, and an occasional wrong
// character is typed and erased with Backspace first.
func (t *Typist) Type(ctx context.Context, page enrich.Page, selector, value string) error {
	if t.cfg.Mode == ModePaste {
		return page.SendKeys(ctx, selector, value)
	}
	for _, r := range value {
		if t.cfg.TypoRate > 0 && t.rnd.Float64() < t.cfg.TypoRate {
			wrong := string(typoAlphabet[t.rnd.IntN(len(typoAlphabet))])
			if err := page.SendKeys(ctx, selector, wrong); err != nil {
				return err
			}
			if err := t.pause(ctx); err != nil {
				return err
			}
			if err := page.SendKeys(ctx, selector, kb.Backspace); err != nil {
				return err
			}
			if err := t.pause(ctx); err != nil {
				return err
			}
		}
		if err := page.SendKeys(ctx, selector, string(r)); err != nil {
			return err
		}
		if err := t.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Typist) pause(ctx context.Context) error {
	if err := t.sleep(ctx, random.Between(t.rnd, t.cfg.MinDelay, t.cfg.MaxDelay)); err != nil {
		return fmt.Errorf("typing pause: %w", err)
	}
	return nil
}
