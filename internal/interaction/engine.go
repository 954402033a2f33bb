// Package interaction drives the remote "where do I vote" form through a
// fixed sequence of steps and turns the rendered result into an Outcome.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/extract"
)

// Stage names reported in technical failures.
const (
	StageNavigate       = "navigate"
	StageDismissBanner  = "dismiss-banner"
	StageOpenForm       = "open-form"
	StageFillIdentifier = "fill-identifier"
	StageFillBirthDate  = "fill-birth-date"
	StageVerifyDate     = "verify-date"
	StageFillMotherName = "fill-mother-name"
	StageSubmit         = "submit"
	StageSubmitMissing  = "submit-control-missing"
	StageAwaitResult    = "await-result"
	StageExtract        = extract.Stage
)

// Selectors locates the form controls.
type Selectors struct {
	Banner     string
	OpenForm   string
	Identifier string
	BirthDate  string
	MotherName string
	Submit     string
}

// DefaultSelectors returns the selectors of the TRE-CE form.
func DefaultSelectors() Selectors {
	return Selectors{
		Banner:     ".cookies .botao button",
		OpenForm:   `app-menu-option[title="8. Onde votar"]`,
		Identifier: "[formcontrolname=TituloCPFNome]",
		BirthDate:  "[formcontrolname=dataNascimento]",
		MotherName: "[formcontrolname=nomeMae]",
		Submit:     ".btn-tse",
	}
}

// Timeouts bounds each step independently.
type Timeouts struct {
	Navigate time.Duration
	Banner   time.Duration
	OpenForm time.Duration
	Field    time.Duration
	Typing   time.Duration
	Submit   time.Duration
	Extract  time.Duration
}

// DefaultTimeouts mirrors the waits the form needs in practice.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate: 120 * time.Second,
		Banner:   5 * time.Second,
		OpenForm: 5 * time.Second,
		Field:    6 * time.Second,
		Typing:   60 * time.Second,
		Submit:   6 * time.Second,
		Extract:  10 * time.Second,
	}
}

// Config configures an Engine.
type Config struct {
	EntryURL  string
	Selectors Selectors
	Timeouts  Timeouts
	// SettleDelay is the fixed wait between submit and extraction.
	SettleDelay time.Duration
}

type step struct {
	name     string
	optional bool
	timeout  time.Duration
	run      func(ctx context.Context, a *attempt) error
}

type attempt struct {
	page    enrich.Page
	rec     enrich.NormalizedRecord
	outcome enrich.Outcome
}

// Engine runs the step table. It holds no per-attempt state and is safe for
// concurrent use by many workers.
type Engine struct {
	cfg       Config
	steps     []step
	extractor *extract.Extractor
	typist    *Typist
	sleep     func(context.Context, time.Duration) error
	logger    *zap.Logger
}

// New creates an Engine.
func New(cfg Config, extractor *extract.Extractor, typist *Typist, sleep func(context.Context, time.Duration) error, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{cfg: cfg, extractor: extractor, typist: typist, sleep: sleep, logger: logger}
	e.steps = e.buildSteps()
	return e
}

func (e *Engine) buildSteps() []step {
	sel, to := e.cfg.Selectors, e.cfg.Timeouts
	return []step{
		{name: StageNavigate, timeout: to.Navigate, run: func(ctx context.Context, a *attempt) error {
			return a.page.Navigate(ctx, e.cfg.EntryURL)
		}},
		{name: StageDismissBanner, optional: true, timeout: to.Banner, run: func(ctx context.Context, a *attempt) error {
			return e.clickWhenVisible(ctx, a.page, sel.Banner)
		}},
		{name: StageOpenForm, optional: true, timeout: to.OpenForm, run: func(ctx context.Context, a *attempt) error {
			return e.clickWhenVisible(ctx, a.page, sel.OpenForm)
		}},
		{name: StageFillIdentifier, run: func(ctx context.Context, a *attempt) error {
			return e.fill(ctx, a.page, sel.Identifier, a.rec.ID)
		}},
		{name: StageFillBirthDate, run: func(ctx context.Context, a *attempt) error {
			return e.fill(ctx, a.page, sel.BirthDate, a.rec.BirthDate)
		}},
		{name: StageVerifyDate, timeout: to.Field, run: func(ctx context.Context, a *attempt) error {
			got, err := a.page.Value(ctx, sel.BirthDate)
			if err != nil {
				return err
			}
			if strings.TrimSpace(got) != a.rec.BirthDate {
				return fmt.Errorf("birth date field holds %q, want %q", got, a.rec.BirthDate)
			}
			return nil
		}},
		{name: StageFillMotherName, run: func(ctx context.Context, a *attempt) error {
			return e.fill(ctx, a.page, sel.MotherName, a.rec.MotherName)
		}},
		{name: StageSubmit, timeout: to.Submit, run: func(ctx context.Context, a *attempt) error {
			if err := a.page.WaitVisible(ctx, sel.Submit); err != nil {
				return &enrich.StepError{Stage: StageSubmitMissing, Err: err}
			}
			return a.page.Click(ctx, sel.Submit)
		}},
		{name: StageAwaitResult, run: func(ctx context.Context, _ *attempt) error {
			return e.sleep(ctx, e.cfg.SettleDelay)
		}},
		{name: StageExtract, timeout: to.Extract, run: func(ctx context.Context, a *attempt) error {
			html, err := a.page.HTML(ctx)
			if err != nil {
				return err
			}
			a.outcome = e.extractor.Extract(html)
			return nil
		}},
	}
}

func (e *Engine) clickWhenVisible(ctx context.Context, page enrich.Page, selector string) error {
	if err := page.WaitVisible(ctx, selector); err != nil {
		return err
	}
	return page.Click(ctx, selector)
}

// fill waits for the field within the field timeout and types value within
// the typing timeout.
func (e *Engine) fill(ctx context.Context, page enrich.Page, selector, value string) error {
	waitCtx, cancel := withTimeout(ctx, e.cfg.Timeouts.Field)
	err := page.WaitVisible(waitCtx, selector)
	cancel()
	if err != nil {
		return err
	}
	typeCtx, cancel := withTimeout(ctx, e.cfg.Timeouts.Typing)
	defer cancel()
	return e.typist.Type(typeCtx, page, selector, value)
}

// Attempt runs every step for rec on page and returns exactly one outcome.
// Required step failures end the attempt with a technical failure; optional
// step failures are logged and skipped.
func (e *Engine) Attempt(ctx context.Context, page enrich.Page, rec enrich.NormalizedRecord) enrich.Outcome {
	a := &attempt{page: page, rec: rec}
	for _, st := range e.steps {
		if err := ctx.Err(); err != nil {
			return enrich.TechnicalFailure(st.name, err)
		}
		stepCtx, cancel := withTimeout(ctx, st.timeout)
		err := st.run(stepCtx, a)
		cancel()
		if err == nil {
			continue
		}
		if st.optional {
			e.logger.Debug("optional step skipped", zap.String("step", st.name), zap.Error(err))
			continue
		}
		var stepErr *enrich.StepError
		if errors.As(err, &stepErr) {
			return enrich.Outcome{Kind: enrich.OutcomeFailure, Stage: stepErr.Stage, Err: stepErr}
		}
		return enrich.TechnicalFailure(st.name, err)
	}
	if a.outcome.Kind == "" {
		return enrich.TechnicalFailure(StageExtract, errors.New("no outcome produced"))
	}
	return a.outcome
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
