package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config controls how NewLogger builds its core.
type Config struct {
	Level  zapcore.Level
	Format string // "json" or "console"

	// Console writes to stderr. OTel forwards entries through otelzap when
	// a LoggerProvider is supplied.
	Console bool
	OTel    bool

	// Caller adds file:line to every entry.
	Caller          bool
	StacktraceLevel zapcore.Level

	// Fields are attached to every entry.
	Fields map[string]string

	Sampling  Sampling
	Redaction Redaction
}

// Sampling keeps the first Initial entries with the same message per Tick,
// then every Thereafter-th one. Error and above are always kept.
type Sampling struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// Redaction masks fields whose key contains one of Keys, and any value
// text matching one of Patterns.
type Redaction struct {
	Enabled  bool
	Keys     []string
	Patterns []string
}

var defaultRedaction = Redaction{
	Enabled: true,
	Keys: []string{
		"password", "secret", "token", "api_key",
		"authorization", "bearer", "credential", "private_key",
	},
	Patterns: []string{
		`(?i)bearer\s+\S+`,
		`(?i)api[_-]?key[=:]\s*\S+`,
		`sk-[A-Za-z0-9_-]{20,}`,        // OpenAI
		`gh[pousr]_[A-Za-z0-9]{30,}`,   // GitHub classic tokens
		`github_pat_[A-Za-z0-9_]{30,}`, // GitHub fine-grained tokens
		`AIza[0-9A-Za-z_-]{35}`,        // Google API keys
	},
}

func NewDefaultConfig() *Config {
	r := defaultRedaction
	r.Keys = append([]string(nil), r.Keys...)
	r.Patterns = append([]string(nil), r.Patterns...)
	return &Config{
		Level:           zapcore.InfoLevel,
		Format:          "json",
		Console:         true,
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "repoindex"},
		Sampling:        Sampling{Enabled: true, Tick: time.Second, Initial: 100, Thereafter: 10},
		Redaction:       r,
	}
}

// FromSettings applies the level and format from the application config
// to the defaults. Console format turns sampling off so interactive runs
// see every per-file line.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if s.Level != "" {
		lvl, err := ParseLevel(s.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	cfg.Sampling.Enabled = cfg.Format != "console"
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.Format != "json" && c.Format != "console" {
		errs = append(errs, fmt.Errorf("format must be json or console, got %q", c.Format))
	}
	if !c.Console && !c.OTel {
		errs = append(errs, errNoOutput)
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		errs = append(errs, errors.New("sampling tick must be positive"))
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, fmt.Errorf("redaction pattern %q: %w", p, err))
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			errs = append(errs, fmt.Errorf("static field %q=%q: key and value must be non-empty", k, v))
		}
	}
	return errors.Join(errs...)
}
