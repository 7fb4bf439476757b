package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// Secret logs whether a credential is set and its length, never its value.
func Secret(key string, val config.Secret) zap.Field {
	if !val.IsSet() {
		return zap.String(key, "unset")
	}
	return zap.String(key, "set("+strconv.Itoa(len(val.Value()))+" chars)")
}

// redactor masks string fields whose key contains a sensitive word, and
// masks the secret-shaped parts of every other string value.
type redactor struct {
	zapcore.Encoder
	words    []string
	patterns []*regexp.Regexp
}

func newRedactor(base zapcore.Encoder, cfg Redaction) (zapcore.Encoder, error) {
	if !cfg.Enabled {
		return base, nil
	}
	r := &redactor{Encoder: base}
	for _, w := range cfg.Keys {
		r.words = append(r.words, strings.ToLower(w))
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, w := range r.words {
		if strings.Contains(key, w) {
			return true
		}
	}
	return false
}

func (r *redactor) mask(val string) string {
	for _, re := range r.patterns {
		val = re.ReplaceAllString(val, redacted)
	}
	return val
}

// EncodeEntry cleans the message and per-entry fields. Fields attached
// with With reach the Add methods below instead.
func (r *redactor) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clean := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		clean[i] = r.field(f)
	}
	ent.Message = r.mask(ent.Message)
	return r.Encoder.EncodeEntry(ent, clean)
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if f.Type == zapcore.SkipType {
		return f
	}
	if r.sensitive(f.Key) {
		return zap.String(f.Key, redacted)
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, r.mask(f.String))
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return zap.String(f.Key, r.mask(string(b)))
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return zap.String(f.Key, r.mask(err.Error()))
		}
	}
	return f
}

func (r *redactor) AddString(key, val string) {
	if r.sensitive(key) {
		val = redacted
	}
	r.Encoder.AddString(key, r.mask(val))
}

func (r *redactor) AddByteString(key string, val []byte) {
	if r.sensitive(key) {
		r.Encoder.AddString(key, redacted)
		return
	}
	r.Encoder.AddString(key, r.mask(string(val)))
}

func (r *redactor) AddReflected(key string, val interface{}) error {
	if r.sensitive(key) {
		r.Encoder.AddString(key, redacted)
		return nil
	}
	return r.Encoder.AddReflected(key, val)
}

func (r *redactor) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if r.sensitive(key) {
		r.Encoder.AddString(key, redacted)
		return nil
	}
	return r.Encoder.AddObject(key, obj)
}

func (r *redactor) Clone() zapcore.Encoder {
	return &redactor{Encoder: r.Encoder.Clone(), words: r.words, patterns: r.patterns}
}
