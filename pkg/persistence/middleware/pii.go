package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	ports.JobStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the output of nodes
// whose label matches one of the patterns. Matching entries are masked in
// the stored snapshot and in the job log.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.JobStore) ports.JobStore {
		return &piiMiddleware{JobStore: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) matches(label string) bool {
	for _, p := range m.patterns {
		if p.MatchString(label) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) SetOutput(ctx context.Context, jobID string, st *domain.State) error {
	// The engine keeps using st; mask a copy.
	cloned := st.Clone()
	for label := range cloned.Snapshot {
		if m.matches(label) {
			cloned.Snapshot[label] = Mask
		}
	}
	return m.JobStore.SetOutput(ctx, jobID, cloned)
}

func (m *piiMiddleware) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	if entry.NodeLabel != "" && m.matches(entry.NodeLabel) {
		entry.Message = Mask
	}
	return m.JobStore.AppendLog(ctx, entry)
}
