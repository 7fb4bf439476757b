package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	// Scrub redacts secrets from the content of the file at path.
	Scrub(path, content string) *Result

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

// redaction tracks a byte span to redact.
type redaction struct {
	start, end int
	ruleID     string
}

type scrubber struct {
	// The gitleaks detector keeps per-scan state, so scans are serialized.
	mu       sync.Mutex
	detector *detect.Detector
}

// New creates a Scrubber backed by the gitleaks default rule set.
func New() (Scrubber, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &scrubber{detector: detector}, nil
}

// Scrub replaces every detected secret with "[REDACTED:<rule>]".
func (s *scrubber) Scrub(path, content string) *Result {
	result := &Result{
		Scrubbed: content,
		ByRule:   make(map[string]int),
	}
	if strings.TrimSpace(content) == "" {
		return result
	}

	s.mu.Lock()
	found := s.detector.DetectString(content)
	s.mu.Unlock()

	var redactions []redaction
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" {
			continue
		}

		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			File:        path,
			Line:        f.StartLine,
		})
		result.ByRule[f.RuleID]++

		for offset := 0; ; {
			i := strings.Index(content[offset:], secret)
			if i < 0 {
				break
			}
			start := offset + i
			redactions = append(redactions, redaction{start: start, end: start + len(secret), ruleID: f.RuleID})
			offset = start + len(secret)
		}
	}

	if len(redactions) == 0 {
		return result
	}

	sort.Slice(redactions, func(i, j int) bool {
		return redactions[i].start < redactions[j].start
	})

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, r := range mergeRedactions(redactions) {
		b.WriteString(content[last:r.start])
		b.WriteString("[REDACTED:" + r.ruleID + "]")
		last = r.end
	}
	b.WriteString(content[last:])
	result.Scrubbed = b.String()

	return result
}

func (s *scrubber) IsEnabled() bool { return true }

// mergeRedactions merges overlapping or adjacent redactions. Input must be
// sorted by start.
func mergeRedactions(redactions []redaction) []redaction {
	if len(redactions) == 0 {
		return redactions
	}

	merged := []redaction{redactions[0]}

	for i := 1; i < len(redactions); i++ {
		last := &merged[len(merged)-1]
		curr := redactions[i]

		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}

	return merged
}

// NoopScrubber returns content unchanged. It is used when scrubbing is disabled.
type NoopScrubber struct{}

// Scrub returns content unchanged.
func (NoopScrubber) Scrub(_, content string) *Result {
	return &Result{Scrubbed: content, ByRule: map[string]int{}}
}

// IsEnabled returns false.
func (NoopScrubber) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = NoopScrubber{}
)
