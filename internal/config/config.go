// Package config loads and validates enricher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/voter-enrichment/internal/browser"
	"github.com/JakeFAU/voter-enrichment/internal/extract"
	"github.com/JakeFAU/voter-enrichment/internal/interaction"
	"github.com/JakeFAU/voter-enrichment/internal/pacing"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
	"github.com/JakeFAU/voter-enrichment/internal/storage/postgres"
)

// Backends for failure screenshots.
const (
	ArtifactsNone  = "none"
	ArtifactsLocal = "local"
	ArtifactsGCS   = "gcs"
)

// Backends for outcome publishing.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Backlog   BacklogConfig   `mapstructure:"backlog"`
	Run       RunConfig       `mapstructure:"run"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Form      FormConfig      `mapstructure:"form"`
	Typing    TypingConfig    `mapstructure:"typing"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Preflight PreflightConfig `mapstructure:"preflight"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig controls the pgx pool.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// BacklogConfig selects the records to enrich.
type BacklogConfig struct {
	Table   string `mapstructure:"table"`
	BatchID string `mapstructure:"batch_id"`
}

// RunConfig governs the worker pool.
type RunConfig struct {
	Concurrency           int  `mapstructure:"concurrency"`
	DryRun                bool `mapstructure:"dry_run"`
	PersistTimeoutSeconds int  `mapstructure:"persist_timeout_seconds"`
	MaxPageFailures       int  `mapstructure:"max_page_failures"`
	ShutdownGraceSeconds  int  `mapstructure:"shutdown_grace_seconds"`
	// Seed fixes the randomness source; zero seeds from the clock.
	Seed uint64 `mapstructure:"seed"`
	// ProgressLine renders the carriage-return counter line on stderr.
	ProgressLine bool `mapstructure:"progress_line"`
}

// BrowserConfig controls browser launch and identity.
type BrowserConfig struct {
	Headless            bool     `mapstructure:"headless"`
	ExecPath            string   `mapstructure:"exec_path"`
	NoSandbox           bool     `mapstructure:"no_sandbox"`
	StartTimeoutSeconds int      `mapstructure:"start_timeout_seconds"`
	Locale              string   `mapstructure:"locale"`
	Languages           []string `mapstructure:"languages"`
	Timezone            string   `mapstructure:"timezone"`
}

// FormConfig describes the remote form and its step timeouts.
type FormConfig struct {
	EntryURL      string            `mapstructure:"entry_url"`
	SettleDelayMs int               `mapstructure:"settle_delay_ms"`
	Selectors     SelectorConfig    `mapstructure:"selectors"`
	Timeouts      StepTimeoutConfig `mapstructure:"timeouts"`
}

// SelectorConfig overrides form and result selectors.
type SelectorConfig struct {
	Banner         string `mapstructure:"banner"`
	OpenForm       string `mapstructure:"open_form"`
	Identifier     string `mapstructure:"identifier"`
	BirthDate      string `mapstructure:"birth_date"`
	MotherName     string `mapstructure:"mother_name"`
	Submit         string `mapstructure:"submit"`
	ResultBox      string `mapstructure:"result_box"`
	ResultLabels   string `mapstructure:"result_labels"`
	ResultValues   string `mapstructure:"result_values"`
	BiometryMarker string `mapstructure:"biometry_marker"`
	NotFoundText   string `mapstructure:"not_found_text"`
}

// StepTimeoutConfig holds per-step timeouts in seconds.
type StepTimeoutConfig struct {
	NavigateSeconds int `mapstructure:"navigate_seconds"`
	BannerSeconds   int `mapstructure:"banner_seconds"`
	OpenFormSeconds int `mapstructure:"open_form_seconds"`
	FieldSeconds    int `mapstructure:"field_seconds"`
	TypingSeconds   int `mapstructure:"typing_seconds"`
	SubmitSeconds   int `mapstructure:"submit_seconds"`
	ExtractSeconds  int `mapstructure:"extract_seconds"`
}

// TypingConfig controls field entry.
type TypingConfig struct {
	Mode       string  `mapstructure:"mode"`
	MinDelayMs int     `mapstructure:"min_delay_ms"`
	MaxDelayMs int     `mapstructure:"max_delay_ms"`
	TypoRate   float64 `mapstructure:"typo_rate"`
}

// PacingConfig spaces out records.
type PacingConfig struct {
	MinDelayMs    int     `mapstructure:"min_delay_ms"`
	MaxDelayMs    int     `mapstructure:"max_delay_ms"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// PreflightConfig controls the reachability probe.
type PreflightConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Marker         string `mapstructure:"marker"`
}

// ArtifactsConfig selects where failure screenshots go.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PublisherConfig selects where outcome events go.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatch        int `mapstructure:"max_batch"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file, and ENRICHER_*
// environment variables. With an empty path it looks for voter-enricher.yaml
// in the working directory, /etc/voter-enricher and $HOME/.voter-enricher,
// and proceeds on defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("voter-enricher")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/voter-enricher/")
		v.AddConfigPath("$HOME/.voter-enricher")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("backlog.table", "supporters")
	v.SetDefault("backlog.batch_id", "")
	v.SetDefault("run.concurrency", 5)
	v.SetDefault("run.dry_run", false)
	v.SetDefault("run.persist_timeout_seconds", 15)
	v.SetDefault("run.max_page_failures", 3)
	v.SetDefault("run.shutdown_grace_seconds", 10)
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.progress_line", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.start_timeout_seconds", 30)
	v.SetDefault("browser.locale", "pt-BR")
	v.SetDefault("browser.languages", []string{})
	v.SetDefault("browser.timezone", "America/Fortaleza")
	v.SetDefault("form.entry_url", "https://www.tre-ce.jus.br/servicos-eleitorais/titulo-e-local-de-votacao/consulta-por-nome")
	v.SetDefault("form.settle_delay_ms", 5000)
	for _, key := range []string{
		"banner", "open_form", "identifier", "birth_date", "mother_name", "submit",
		"result_box", "result_labels", "result_values", "biometry_marker", "not_found_text",
	} {
		v.SetDefault("form.selectors."+key, "")
	}
	to := interaction.DefaultTimeouts()
	v.SetDefault("form.timeouts.navigate_seconds", int(to.Navigate/time.Second))
	v.SetDefault("form.timeouts.banner_seconds", int(to.Banner/time.Second))
	v.SetDefault("form.timeouts.open_form_seconds", int(to.OpenForm/time.Second))
	v.SetDefault("form.timeouts.field_seconds", int(to.Field/time.Second))
	v.SetDefault("form.timeouts.typing_seconds", int(to.Typing/time.Second))
	v.SetDefault("form.timeouts.submit_seconds", int(to.Submit/time.Second))
	v.SetDefault("form.timeouts.extract_seconds", int(to.Extract/time.Second))
	v.SetDefault("typing.mode", interaction.ModeHuman)
	v.SetDefault("typing.min_delay_ms", 50)
	v.SetDefault("typing.max_delay_ms", 150)
	v.SetDefault("typing.typo_rate", 0.03)
	v.SetDefault("pacing.min_delay_ms", 1000)
	v.SetDefault("pacing.max_delay_ms", 3000)
	v.SetDefault("pacing.rate_per_second", 0)
	v.SetDefault("pacing.burst", 1)
	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout_seconds", 20)
	v.SetDefault("preflight.marker", "")
	v.SetDefault("artifacts.backend", ArtifactsNone)
	v.SetDefault("artifacts.dir", "data/screenshots")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.prefix", "screenshots")
	v.SetDefault("publisher.backend", PublisherNone)
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "voter-enrichment-outcomes")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch", 256)
	v.SetDefault("progress.flush_interval_ms", 500)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. It runs after
// command-line overrides are applied.
func (c Config) Validate() error {
	var errs []error
	if c.Backlog.BatchID == "" {
		errs = append(errs, errors.New("backlog.batch_id is required"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Run.Concurrency <= 0 {
		errs = append(errs, errors.New("run.concurrency must be > 0"))
	}
	if c.Form.EntryURL == "" {
		errs = append(errs, errors.New("form.entry_url is required"))
	}
	switch c.Typing.Mode {
	case interaction.ModeHuman, interaction.ModePaste:
	default:
		errs = append(errs, fmt.Errorf("typing.mode %q must be %q or %q", c.Typing.Mode, interaction.ModeHuman, interaction.ModePaste))
	}
	if c.Typing.TypoRate < 0 || c.Typing.TypoRate >= 1 {
		errs = append(errs, errors.New("typing.typo_rate must be in [0, 1)"))
	}
	if c.Typing.MinDelayMs > c.Typing.MaxDelayMs {
		errs = append(errs, errors.New("typing.min_delay_ms must be <= typing.max_delay_ms"))
	}
	if c.Pacing.MinDelayMs > c.Pacing.MaxDelayMs {
		errs = append(errs, errors.New("pacing.min_delay_ms must be <= pacing.max_delay_ms"))
	}
	if c.Pacing.RatePerSecond < 0 {
		errs = append(errs, errors.New("pacing.rate_per_second must be >= 0"))
	}
	t := c.Form.Timeouts
	for name, secs := range map[string]int{
		"navigate": t.NavigateSeconds, "banner": t.BannerSeconds, "open_form": t.OpenFormSeconds,
		"field": t.FieldSeconds, "typing": t.TypingSeconds, "submit": t.SubmitSeconds, "extract": t.ExtractSeconds,
	} {
		if secs <= 0 {
			errs = append(errs, fmt.Errorf("form.timeouts.%s_seconds must be > 0", name))
		}
	}
	switch c.Artifacts.Backend {
	case ArtifactsNone:
	case ArtifactsLocal:
		if c.Artifacts.Dir == "" {
			errs = append(errs, errors.New("artifacts.dir is required for the local backend"))
		}
	case ArtifactsGCS:
		if c.Artifacts.Bucket == "" {
			errs = append(errs, errors.New("artifacts.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend))
	}
	switch c.Publisher.Backend {
	case PublisherNone, PublisherMemory:
	case PublisherPubSub:
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			errs = append(errs, errors.New("publisher.project_id and publisher.topic are required for pubsub"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publisher.backend %q", c.Publisher.Backend))
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0 when the server is enabled"))
	}
	return errors.Join(errs...)
}

// Pool converts the database section for postgres.Connect.
func (c Config) Pool() postgres.PoolConfig {
	return postgres.PoolConfig{
		DSN:             c.Database.DSN,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: time.Duration(c.Database.MaxConnLifetimeMinutes) * time.Minute,
	}
}

// Launcher converts the browser section.
func (c Config) Launcher() browser.Config {
	return browser.Config{
		Headless:     c.Browser.Headless,
		ExecPath:     c.Browser.ExecPath,
		NoSandbox:    c.Browser.NoSandbox,
		StartTimeout: seconds(c.Browser.StartTimeoutSeconds),
	}
}

// Identity converts the locale settings shared by every identity.
func (c Config) Identity() browser.IdentityConfig {
	return browser.IdentityConfig{
		Locale:    c.Browser.Locale,
		Languages: c.Browser.Languages,
		Timezone:  c.Browser.Timezone,
	}
}

// Engine converts the form section. Blank selectors keep the defaults.
func (c Config) Engine() interaction.Config {
	sel := interaction.DefaultSelectors()
	s := c.Form.Selectors
	override(&sel.Banner, s.Banner)
	override(&sel.OpenForm, s.OpenForm)
	override(&sel.Identifier, s.Identifier)
	override(&sel.BirthDate, s.BirthDate)
	override(&sel.MotherName, s.MotherName)
	override(&sel.Submit, s.Submit)

	t := c.Form.Timeouts
	return interaction.Config{
		EntryURL:  c.Form.EntryURL,
		Selectors: sel,
		Timeouts: interaction.Timeouts{
			Navigate: seconds(t.NavigateSeconds),
			Banner:   seconds(t.BannerSeconds),
			OpenForm: seconds(t.OpenFormSeconds),
			Field:    seconds(t.FieldSeconds),
			Typing:   seconds(t.TypingSeconds),
			Submit:   seconds(t.SubmitSeconds),
			Extract:  seconds(t.ExtractSeconds),
		},
		SettleDelay: millis(c.Form.SettleDelayMs),
	}
}

// Extractor converts the result selectors. Blank values keep the defaults.
func (c Config) Extractor() extract.Selectors {
	s := c.Form.Selectors
	return extract.Selectors{
		Container:       s.ResultBox,
		Labels:          s.ResultLabels,
		Descriptions:    s.ResultValues,
		BiometryMarker:  s.BiometryMarker,
		NotFoundMessage: s.NotFoundText,
	}
}

// Typist converts the typing section.
func (c Config) Typist() interaction.TypingConfig {
	return interaction.TypingConfig{
		Mode:     c.Typing.Mode,
		MinDelay: millis(c.Typing.MinDelayMs),
		MaxDelay: millis(c.Typing.MaxDelayMs),
		TypoRate: c.Typing.TypoRate,
	}
}

// Pacer converts the pacing section.
func (c Config) Pacer() pacing.Config {
	return pacing.Config{
		MinDelay:      millis(c.Pacing.MinDelayMs),
		MaxDelay:      millis(c.Pacing.MaxDelayMs),
		RatePerSecond: c.Pacing.RatePerSecond,
		Burst:         c.Pacing.Burst,
	}
}

// Hub converts the progress section.
func (c Config) Hub() progress.HubConfig {
	return progress.HubConfig{
		BufferSize:    c.Progress.BufferSize,
		MaxBatch:      c.Progress.MaxBatch,
		FlushInterval: millis(c.Progress.FlushIntervalMs),
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
