// Package plan accumulates benchmarks and reported compliance issues and
// generates the remediation plan text that sequences fix invocations
// against deduplicated target lists.
//
// A Builder is not safe for concurrent use: the add methods mutate internal
// maps non-atomically and Produce consolidates reported issues in place.
package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planfix/planfix/internal/benchmark"
	"github.com/planfix/planfix/internal/fixsource"
	"github.com/planfix/planfix/internal/issue"
)

// Builder accumulates plan-generation state. Create with NewBuilder.
type Builder struct {
	planName string
	version  string
	log      *zap.Logger
	now      func() time.Time

	benchmarks map[string]*benchmark.Benchmark
	issues     map[issue.Key]issue.Issue
	ignored    map[issue.Key]struct{}
	reported   map[issue.Key][]*ReportedIssue
}

// Option customizes a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source used in the plan banner.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithLogger sets the builder's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) { b.log = logger.Named("plan") }
}

// WithVersion sets the tool version rendered in the plan banner.
func WithVersion(version string) Option {
	return func(b *Builder) { b.version = version }
}

// NewBuilder creates a Builder for a plan with the given name.
func NewBuilder(planName string, opts ...Option) *Builder {
	b := &Builder{
		planName:   planName,
		version:    "dev",
		log:        zap.NewNop(),
		now:        time.Now,
		benchmarks: make(map[string]*benchmark.Benchmark),
		issues:     make(map[issue.Key]issue.Issue),
		ignored:    make(map[issue.Key]struct{}),
		reported:   make(map[issue.Key][]*ReportedIssue),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddBenchmark registers bench under its mnemonic. A later registration
// with the same mnemonic silently replaces the earlier one; callers needing
// strict uniqueness must check Benchmarks first.
func (b *Builder) AddBenchmark(bench *benchmark.Benchmark) {
	if _, exists := b.benchmarks[bench.Name]; exists {
		b.log.Debug("Replacing registered benchmark", zap.String("mnemonic", bench.Name))
	}
	b.benchmarks[bench.Name] = bench
}

// Benchmarks returns the registered benchmarks keyed by mnemonic. The map
// is a copy; the benchmarks themselves are shared.
func (b *Builder) Benchmarks() map[string]*benchmark.Benchmark {
	out := make(map[string]*benchmark.Benchmark, len(b.benchmarks))
	for k, v := range b.benchmarks {
		out[k] = v
	}
	return out
}

// AddIssue registers iss after validating that its mnemonic names a
// registered benchmark. Re-adding an issue with the same identity is a
// no-op that returns the originally registered issue.
func (b *Builder) AddIssue(iss issue.Issue) (issue.Issue, error) {
	if _, ok := b.benchmarks[iss.Mnemonic()]; !ok {
		return issue.Issue{}, &UnknownBenchmarkError{Mnemonic: iss.Mnemonic()}
	}
	if existing, ok := b.issues[iss.Key()]; ok {
		return existing, nil
	}
	b.issues[iss.Key()] = iss
	return iss, nil
}

// AddIssueRef parses ref and registers the resulting issue.
func (b *Builder) AddIssueRef(ref string) (issue.Issue, error) {
	iss, err := issue.Parse(ref)
	if err != nil {
		return issue.Issue{}, err
	}
	return b.AddIssue(iss)
}

// AddReportedIssue registers iss and records one report of it on the given
// nodes. Multiple reports of the same issue accumulate until Produce
// consolidates them.
func (b *Builder) AddReportedIssue(iss issue.Issue, nodes ...string) error {
	registered, err := b.AddIssue(iss)
	if err != nil {
		return err
	}
	key := registered.Key()
	b.reported[key] = append(b.reported[key], NewReported(registered, nodes...))
	return nil
}

// IgnoreReportedIssue registers iss and marks it ignored. Ignored issues
// still appear in the plan but render as a skip comment; the fix provider
// is never consulted for them.
func (b *Builder) IgnoreReportedIssue(iss issue.Issue) error {
	registered, err := b.AddIssue(iss)
	if err != nil {
		return err
	}
	b.ignored[registered.Key()] = struct{}{}
	return nil
}

// CombineReportedIssues reduces every issue's accumulated reports to a
// single merged report. Produce calls this; running it again is a no-op.
func (b *Builder) CombineReportedIssues() {
	for key, reports := range b.reported {
		if len(reports) <= 1 {
			continue
		}
		merged := reports[0]
		for _, r := range reports[1:] {
			// Merge cannot fail here: all reports under one key share
			// the issue identity.
			next, err := merged.Merge(r)
			if err != nil {
				b.log.Error("Dropping unmergeable report", zap.Error(err))
				continue
			}
			merged = next
		}
		b.reported[key] = []*ReportedIssue{merged}
	}
}

// Produce generates the remediation plan text. Rendering order is fully
// determined by sorting on the issues' canonical refs; fix resolution goes
// through provider once per non-ignored issue. Provider failures and
// contract violations abort the whole generation.
func (b *Builder) Produce(ctx context.Context, provider fixsource.Provider) (string, error) {
	b.CombineReportedIssues()

	type entry struct {
		iss issue.Issue
		rep *ReportedIssue
	}
	entries := make([]entry, 0, len(b.reported))
	for key, reports := range b.reported {
		if len(reports) == 0 {
			continue
		}
		entries = append(entries, entry{iss: b.issues[key], rep: reports[0]})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].iss.Ref() < entries[j].iss.Ref()
	})

	lines := []string{
		fmt.Sprintf("# This plan was generated by planfix %s", b.version),
		fmt.Sprintf("# Generated at: %s", b.now().UTC().Format(time.RFC3339)),
		"#",
		fmt.Sprintf("plan %s() {", b.planName),
	}

	targets := make(map[string]int)
	lastMnemonic := ""

	for _, e := range entries {
		ref := e.iss.Ref()
		mnemonic := e.iss.Mnemonic()
		bench := b.benchmarks[mnemonic]

		if mnemonic != lastMnemonic {
			if lastMnemonic != "" {
				lines = append(lines, "")
			}
			lines = append(lines,
				fmt.Sprintf("  # Benchmark: %s", bench.Name),
				fmt.Sprintf("  # Version:   %s", bench.Version),
				fmt.Sprintf("  # Id:        %s", bench.ID),
			)
			lastMnemonic = mnemonic
		}

		nodes := e.rep.Nodes()

		if _, skip := b.ignored[e.iss.Key()]; skip {
			lines = append(lines,
				fmt.Sprintf("  # Skipped: %s", ref),
				fmt.Sprintf("  # Nodes: [%s]", quotedList(nodes)),
			)
			continue
		}

		lines = append(lines,
			fmt.Sprintf("  # Issue: %s", ref),
			fmt.Sprintf("  # Nodes: [%s]", quotedList(nodes)),
		)

		resolutions, err := provider.FindFixes(ctx, e.iss, nodes, bench.AllFacts())
		if err != nil {
			return "", fmt.Errorf("resolving fixes for %s: %w", ref, err)
		}
		if err := checkPartition(ref, nodes, resolutions); err != nil {
			return "", err
		}

		for _, res := range resolutions {
			if !res.Fix.RequiresTargets() {
				lines = append(lines, "  "+res.Fix.Render(""))
				continue
			}

			subset := append([]string(nil), res.Nodes...)
			sort.Strings(subset)
			key := strings.Join(subset, "\x00")

			idx, seen := targets[key]
			if !seen {
				idx = len(targets)
				targets[key] = idx
				lines = append(lines, fmt.Sprintf("  $targets_%d = [%s]", idx, quotedList(subset)))
			}
			lines = append(lines, "  "+res.Fix.Render(fmt.Sprintf("$targets_%d", idx)))
		}
	}

	lines = append(lines, "}")
	return strings.Join(lines, "\n") + "\n", nil
}

// checkPartition verifies the provider contract: the returned subsets must
// cover every reported node exactly once and introduce none of their own.
func checkPartition(ref string, reported []string, resolutions []fixsource.Resolution) error {
	want := make(map[string]struct{}, len(reported))
	for _, n := range reported {
		want[n] = struct{}{}
	}

	seen := make(map[string]struct{})
	var violation ContractViolationError
	violation.Ref = ref

	for _, res := range resolutions {
		for _, n := range res.Nodes {
			if _, dup := seen[n]; dup {
				violation.Duplicated = append(violation.Duplicated, n)
				continue
			}
			seen[n] = struct{}{}
			if _, ok := want[n]; !ok {
				violation.Foreign = append(violation.Foreign, n)
			}
		}
	}
	for _, n := range reported {
		if _, ok := seen[n]; !ok {
			violation.Unaccounted = append(violation.Unaccounted, n)
		}
	}

	if len(violation.Unaccounted) > 0 || len(violation.Foreign) > 0 || len(violation.Duplicated) > 0 {
		sort.Strings(violation.Unaccounted)
		sort.Strings(violation.Foreign)
		sort.Strings(violation.Duplicated)
		return &violation
	}
	return nil
}

// quotedList renders node names as "'a', 'b'", escaping embedded quotes.
func quotedList(nodes []string) string {
	quoted := make([]string, len(nodes))
	for i, n := range nodes {
		n = strings.ReplaceAll(n, `\`, `\\`)
		n = strings.ReplaceAll(n, `'`, `\'`)
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}
