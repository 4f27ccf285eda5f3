// Package watchdog holds the classification and escalation engine: the
// whitelist classifier, the three-state health machine, the heartbeat
// monitor and the escalation scheduler that re-notifies while an error
// persists.
package watchdog

import (
	"fmt"
	"regexp"
	"strings"

	"doorwatch/internal/types"
)

// Classifier decides whether a line from the monitored subsystem is benign.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	tag         string
	prefixWidth int
	patterns    []*regexp.Regexp
}

// NewClassifier compiles the whitelist. Patterns are anchored at the start of
// the line remainder (after the fixed-width prefix), not at the end.
func NewClassifier(tag string, prefixWidth int, whitelist []string) (*Classifier, error) {
	if prefixWidth < 0 {
		return nil, fmt.Errorf("classifier: negative prefix width %d", prefixWidth)
	}

	patterns := make([]*regexp.Regexp, 0, len(whitelist))
	for i, p := range whitelist {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("classifier: whitelist pattern %d %q: %w", i, p, err)
		}
		patterns = append(patterns, re)
	}

	return &Classifier{
		tag:         tag,
		prefixWidth: prefixWidth,
		patterns:    patterns,
	}, nil
}

// Eligible reports whether the line belongs to the monitored subsystem.
// Lines from anything else on the box are audited but never classified.
func (c *Classifier) Eligible(payload string) bool {
	return strings.Contains(payload, c.tag)
}

// Classify strips the timestamp/level prefix and tests the remainder against
// the whitelist in order. First match is Benign; no match is Anomalous.
func (c *Classifier) Classify(payload string) types.Verdict {
	rest := ""
	if len(payload) > c.prefixWidth {
		rest = payload[c.prefixWidth:]
	}

	for _, re := range c.patterns {
		if re.MatchString(rest) {
			return types.VerdictBenign
		}
	}
	return types.VerdictAnomalous
}

// Patterns returns the number of compiled whitelist entries.
func (c *Classifier) Patterns() int {
	return len(c.patterns)
}
