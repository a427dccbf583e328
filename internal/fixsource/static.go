package fixsource

import (
	"context"
	"fmt"

	"github.com/planfix/planfix/internal/issue"
)

// Static resolves fixes from layered fixconf data held in memory.
//
// Lookup follows a "first non-empty, else union of unique keys" merge: the
// highest-precedence level that declares specs for (mnemonic, section) wins
// outright, and parameter maps are then topped up with keys that only lower
// levels declare. Conflicting parameter keys keep the winning level's value.
type Static struct {
	levels []Level
	sink   Sink
}

// NewStatic builds a Static provider over conf. A nil sink disables lookup
// diagnostics.
func NewStatic(conf *Fixconf, sink Sink) *Static {
	if sink == nil {
		sink = NopSink{}
	}
	return &Static{levels: conf.Levels, sink: sink}
}

// FindFixes implements Provider.
func (s *Static) FindFixes(ctx context.Context, iss issue.Issue, nodes []string, _ map[string]any) ([]Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	specs := s.lookup(iss)
	if specs == nil {
		s.sink.Explain(newEvent(iss.Ref(), "", "no level declares a fix"))
		return Null{}.FindFixes(ctx, iss, nodes, nil)
	}
	return partition(nodes, specs)
}

// lookup finds the winning spec list for the issue and merges in unique
// parameter keys from lower-precedence levels. Lower-level specs contribute
// only to a winning spec with the same node pattern.
func (s *Static) lookup(iss issue.Issue) []Spec {
	mnemonic, section := iss.Mnemonic(), iss.Section()

	winner := -1
	var chosen []Spec
	for i, lv := range s.levels {
		specs := lv.Fixes[mnemonic][section]
		if len(specs) == 0 {
			continue
		}
		winner = i
		chosen = make([]Spec, len(specs))
		copy(chosen, specs)
		s.sink.Explain(newEvent(iss.Ref(), lv.Name, fmt.Sprintf("level declares %d fix spec(s)", len(specs))))
		break
	}
	if winner < 0 {
		return nil
	}

	// Deep-copy params before merging so the shared conf stays untouched.
	for ci := range chosen {
		params := make(map[string]any, len(chosen[ci].Params))
		for k, v := range chosen[ci].Params {
			params[k] = v
		}
		chosen[ci].Params = params
	}

	for i := winner + 1; i < len(s.levels); i++ {
		for _, lower := range s.levels[i].Fixes[mnemonic][section] {
			for ci := range chosen {
				if chosen[ci].Nodes != lower.Nodes {
					continue
				}
				for k, v := range lower.Params {
					if _, ok := chosen[ci].Params[k]; !ok {
						chosen[ci].Params[k] = v
						s.sink.Explain(newEvent(iss.Ref(), s.levels[i].Name,
							fmt.Sprintf("merged unique parameter %q from lower level", k)))
					}
				}
			}
		}
	}

	return chosen
}
