package secrets

// Result contains the scrubbing result for one file.
type Result struct {
	// Scrubbed is the content with secrets redacted.
	Scrubbed string `json:"-"`

	// Findings contains the detected secrets (without actual values).
	Findings []Finding `json:"findings,omitempty"`

	// ByRule maps rule IDs to finding counts.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding represents a detected secret.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	File        string `json:"file"`
	Line        int    `json:"line"`
}

// HasFindings returns true if any secrets were found.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}
