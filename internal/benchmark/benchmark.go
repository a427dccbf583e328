// Package benchmark holds the scan-profile value type registered with the
// plan builder and handed to fix sources as lookup context.
package benchmark

import "sync"

// Benchmark describes one compliance scan profile. The short Name is the
// mnemonic used as the registry key and as the URI scheme of issue
// references. Fields must not be mutated after New.
type Benchmark struct {
	ID      string
	Name    string
	Version string
	Family  string
	Facts   map[string]any

	allFactsOnce sync.Once
	allFacts     map[string]any
}

// New constructs a Benchmark. The facts map is copied at the top level so
// later caller mutations cannot leak in.
func New(id, name, version, family string, facts map[string]any) *Benchmark {
	copied := make(map[string]any, len(facts))
	for k, v := range facts {
		copied[k] = v
	}
	return &Benchmark{
		ID:      id,
		Name:    name,
		Version: version,
		Family:  family,
		Facts:   copied,
	}
}

// AllFacts returns the benchmark facts augmented with a "benchmark" sub-map
// carrying the profile's own identity. This is the facts context passed to
// fix sources. The result is computed once and shared; callers must treat
// it as read-only.
func (b *Benchmark) AllFacts() map[string]any {
	b.allFactsOnce.Do(func() {
		all := make(map[string]any, len(b.Facts)+1)
		for k, v := range b.Facts {
			all[k] = v
		}
		all["benchmark"] = map[string]any{
			"id":      b.ID,
			"name":    b.Name,
			"version": b.Version,
			"family":  b.Family,
		}
		b.allFacts = all
	})
	return b.allFacts
}
