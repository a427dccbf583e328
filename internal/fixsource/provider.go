// Package fixsource resolves reported issues to remediation fixes. A
// Provider partitions the reported node set into subsets and maps each
// subset to the fix that applies to it. Implementations range from the
// trivial Null provider to layered fixconf data, a Postgres table, and a
// remote lookup service.
package fixsource

import (
	"context"
	"path/filepath"

	"github.com/planfix/planfix/internal/fix"
	"github.com/planfix/planfix/internal/issue"
)

// Resolution binds one subset of an issue's reported nodes to the fix that
// applies to it. Providers return resolutions in the order they should be
// rendered.
type Resolution struct {
	Nodes []string
	Fix   fix.Fix
}

// Provider is the fix lookup contract. The returned resolutions must
// partition the given nodes: every node accounted for exactly once. The
// facts map is the owning benchmark's AllFacts and must be treated as
// read-only. Lookups may be slow (remote backends); implementations must
// honor ctx.
type Provider interface {
	FindFixes(ctx context.Context, iss issue.Issue, nodes []string, facts map[string]any) ([]Resolution, error)
}

// Null is the provider of last resort: every node gets NoFix.
type Null struct{}

// FindFixes implements Provider.
func (Null) FindFixes(_ context.Context, _ issue.Issue, nodes []string, _ map[string]any) ([]Resolution, error) {
	return []Resolution{{Nodes: append([]string(nil), nodes...), Fix: fix.None()}}, nil
}

// partition distributes nodes over the given specs. Specs with a node
// pattern claim matching nodes in declaration order; the first pattern-less
// spec takes whatever remains. Nodes no spec claims fall through to NoFix so
// the result always covers the full input set.
func partition(nodes []string, specs []Spec) ([]Resolution, error) {
	remaining := append([]string(nil), nodes...)
	var out []Resolution
	var fallback *Spec

	claim := func(pattern string) ([]string, error) {
		var matched, rest []string
		for _, n := range remaining {
			ok, err := filepath.Match(pattern, n)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, n)
			} else {
				rest = append(rest, n)
			}
		}
		remaining = rest
		return matched, nil
	}

	for i := range specs {
		spec := specs[i]
		if spec.Nodes == "" {
			if fallback == nil {
				fallback = &spec
			}
			continue
		}
		matched, err := claim(spec.Nodes)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			continue
		}
		f, err := spec.Fix()
		if err != nil {
			return nil, err
		}
		out = append(out, Resolution{Nodes: matched, Fix: f})
	}

	if len(remaining) > 0 {
		if fallback != nil {
			f, err := fallback.Fix()
			if err != nil {
				return nil, err
			}
			out = append(out, Resolution{Nodes: remaining, Fix: f})
		} else {
			out = append(out, Resolution{Nodes: remaining, Fix: fix.None()})
		}
	}

	return out, nil
}
