package logging

import (
	"errors"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug for per-chunk and per-batch detail.
const TraceLevel = zapcore.Level(-2)

var errNoOutput = errors.New("no log output available")

// ParseLevel accepts zap's level names plus "trace".
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return TraceLevel, nil
	}
	return zapcore.ParseLevel(s)
}

// buildCore tees the console and OpenTelemetry outputs and applies
// sampling. Entries at error level and above are never sampled.
func buildCore(cfg *Config, lp log.LoggerProvider, sink zapcore.WriteSyncer) (zapcore.Core, error) {
	var cores []zapcore.Core
	if cfg.Console {
		enc, err := newRedactor(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, sink, cfg.Level))
	}
	if cfg.OTel && lp != nil {
		cores = append(cores, otelzap.NewCore("repoindex", otelzap.WithLoggerProvider(lp)))
	}
	if len(cores) == 0 {
		return nil, errNoOutput
	}

	core := zapcore.NewTee(cores...)
	if !cfg.Sampling.Enabled {
		return core, nil
	}

	sampled := zapcore.NewSamplerWithOptions(belowError{core},
		cfg.Sampling.Tick, cfg.Sampling.Initial, cfg.Sampling.Thereafter)

	errorsOnly, err := zapcore.NewIncreaseLevelCore(core, zapcore.ErrorLevel)
	if err != nil {
		// The configured level is above error; nothing bypasses sampling.
		return sampled, nil
	}
	return zapcore.NewTee(errorsOnly, sampled), nil
}

// belowError passes only entries under error level.
type belowError struct {
	zapcore.Core
}

func (c belowError) Enabled(l zapcore.Level) bool {
	return l < zapcore.ErrorLevel && c.Core.Enabled(l)
}

func (c belowError) With(fields []zapcore.Field) zapcore.Core {
	return belowError{c.Core.With(fields)}
}

func (c belowError) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func newEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// encodeLevel prints TraceLevel as "trace" instead of zap's "Level(-2)".
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
