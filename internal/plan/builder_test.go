package plan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfix/planfix/internal/benchmark"
	"github.com/planfix/planfix/internal/fix"
	"github.com/planfix/planfix/internal/fixsource"
	"github.com/planfix/planfix/internal/issue"
	"github.com/planfix/planfix/internal/plan"
)

// stubProvider delegates to fn and counts invocations.
type stubProvider struct {
	fn    func(iss issue.Issue, nodes []string, facts map[string]any) ([]fixsource.Resolution, error)
	calls int
}

func (s *stubProvider) FindFixes(_ context.Context, iss issue.Issue, nodes []string, facts map[string]any) ([]fixsource.Resolution, error) {
	s.calls++
	return s.fn(iss, nodes, facts)
}

// taskProvider resolves every issue to a single task fix over all nodes.
func taskProvider(name string) *stubProvider {
	return &stubProvider{fn: func(_ issue.Issue, nodes []string, _ map[string]any) ([]fixsource.Resolution, error) {
		f, err := fix.NewTask(name, nil)
		if err != nil {
			return nil, err
		}
		return []fixsource.Resolution{{Nodes: nodes, Fix: f}}, nil
	}}
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func newTestBuilder(t *testing.T, name string) *plan.Builder {
	t.Helper()
	return plan.NewBuilder(name, plan.WithClock(fixedClock()), plan.WithVersion("1.0"))
}

func TestAddIssue_UnknownBenchmark(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id-other", "other", "1.0", "Linux", nil))

	_, err := b.AddIssue(issue.New("cis-rhel7", "1.1.1", "x"))
	require.Error(t, err)

	var uerr *plan.UnknownBenchmarkError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "cis-rhel7", uerr.Mnemonic)

	// Reported issues validate the same way.
	err = b.AddReportedIssue(issue.New("cis-rhel7", "1.1.1", "x"), "kermit")
	assert.True(t, errors.As(err, &uerr))
}

func TestAddIssue_IdempotentKeepsFirstRegistration(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))

	first, err := b.AddIssue(issue.New("cis", "1.1.1", "Original title"))
	require.NoError(t, err)

	again, err := b.AddIssue(issue.New("cis", "1.1.1", "Renamed title"))
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, "Original title", again.Name())
}

func TestAddBenchmark_LastWriteWins(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id-1", "cis", "1.0", "Linux", nil))
	b.AddBenchmark(benchmark.New("id-2", "cis", "2.0", "Linux", nil))

	assert.Equal(t, "id-2", b.Benchmarks()["cis"].ID)
}

func TestProduce_EmptyPlan(t *testing.T) {
	b := newTestBuilder(t, "remediate_nodes")

	out, err := b.Produce(context.Background(), fixsource.Null{})
	require.NoError(t, err)

	want := "# This plan was generated by planfix 1.0\n" +
		"# Generated at: 2026-08-23T12:00:00Z\n" +
		"#\n" +
		"plan remediate_nodes() {\n" +
		"}\n"
	assert.Equal(t, want, out)
}

func TestProduce_TaskFixWithSortedQuotedTargets(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("bench-id", "fixname", "2.2.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("fixname", "1.1.1", "x"), "kermit", "gonzo"))

	out, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	assert.Contains(t, out, "$targets_0 = ['gonzo', 'kermit']")
	assert.Contains(t, out, "run_task('mytask', $targets_0, )")

	// Declaration precedes the call.
	decl := strings.Index(out, "$targets_0 = ")
	call := strings.Index(out, "run_task(")
	assert.Less(t, decl, call)
}

func TestProduce_ReusesTargetVariableForIdenticalSubset(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("bench-id", "cis", "1.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit", "gonzo"))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.2", "y"), "gonzo", "kermit"))

	out, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "$targets_0 = ['gonzo', 'kermit']"))
	assert.NotContains(t, out, "$targets_1")
	assert.Equal(t, 2, strings.Count(out, "run_task('mytask', $targets_0, )"))
}

func TestProduce_DistinctSubsetsGetDistinctVariables(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("bench-id", "cis", "1.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.2", "y"), "gonzo"))

	out, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	assert.Contains(t, out, "$targets_0 = ['kermit']")
	assert.Contains(t, out, "$targets_1 = ['gonzo']")
}

func TestProduce_OrderingFollowsIssueRefs(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id-a", "aaa-bench", "1.0", "Linux", nil))
	b.AddBenchmark(benchmark.New("id-z", "zzz-bench", "3.1", "Linux", nil))

	// Registered deliberately out of order.
	require.NoError(t, b.AddReportedIssue(issue.New("zzz-bench", "2.1", "z"), "gonzo"))
	require.NoError(t, b.AddReportedIssue(issue.New("aaa-bench", "9.9", "late"), "kermit"))
	require.NoError(t, b.AddReportedIssue(issue.New("aaa-bench", "1.1", "early"), "kermit"))

	out, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	posA := strings.Index(out, "# Benchmark: aaa-bench")
	posZ := strings.Index(out, "# Benchmark: zzz-bench")
	require.Greater(t, posA, -1)
	require.Greater(t, posZ, -1)
	assert.Less(t, posA, posZ)

	posEarly := strings.Index(out, "# Issue: aaa-bench:/1.1_early")
	posLate := strings.Index(out, "# Issue: aaa-bench:/9.9_late")
	assert.Less(t, posEarly, posLate)

	// Exactly one header block per benchmark, separated by a blank line.
	assert.Equal(t, 1, strings.Count(out, "# Benchmark: aaa-bench"))
	assert.Equal(t, 1, strings.Count(out, "# Benchmark: zzz-bench"))
	assert.Contains(t, out, "\n\n  # Benchmark: zzz-bench")
}

func TestProduce_BenchmarkHeaderContents(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("xccdf_cis_rhel7", "cis-rhel7", "2.2.0", "RedHat", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis-rhel7", "1.1.1", "x"), "kermit"))

	out, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	assert.Contains(t, out, "  # Benchmark: cis-rhel7\n  # Version:   2.2.0\n  # Id:        xccdf_cis_rhel7\n")
}

func TestProduce_IgnoredIssueSkipsProvider(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))

	iss := issue.New("cis", "1.1.1", "x")
	require.NoError(t, b.AddReportedIssue(iss, "kermit", "gonzo"))
	require.NoError(t, b.IgnoreReportedIssue(iss))

	provider := taskProvider("mytask")
	out, err := b.Produce(context.Background(), provider)
	require.NoError(t, err)

	assert.Zero(t, provider.calls)
	assert.Contains(t, out, "# Skipped: cis:/1.1.1_x")
	assert.Contains(t, out, "# Nodes: ['gonzo', 'kermit']")
	assert.NotContains(t, out, "run_task")
	assert.NotContains(t, out, "$targets_")
}

func TestProduce_ConsolidatesAccumulatedReports(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))

	// Same identity reported three times, node sets overlapping.
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "other title"), "gonzo"))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit", "piggy"))

	provider := taskProvider("mytask")
	out, err := b.Produce(context.Background(), provider)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "one provider call per distinct issue")
	assert.Contains(t, out, "$targets_0 = ['gonzo', 'kermit', 'piggy']")
}

func TestProduce_Idempotent(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "gonzo"))

	first, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)
	second, err := b.Produce(context.Background(), taskProvider("mytask"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProduce_SyntheticFixRendersWithoutTargets(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))

	out, err := b.Produce(context.Background(), fixsource.Null{})
	require.NoError(t, err)

	assert.Contains(t, out, "  # No fix defined for this issue")
	assert.NotContains(t, out, "$targets_")
}

func TestProduce_ProviderErrorPropagates(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))

	lookupErr := errors.New("backend lookup failed")
	provider := &stubProvider{fn: func(issue.Issue, []string, map[string]any) ([]fixsource.Resolution, error) {
		return nil, lookupErr
	}}

	_, err := b.Produce(context.Background(), provider)
	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
}

func TestProduce_ContractViolation(t *testing.T) {
	cases := []struct {
		name       string
		resolution fixsource.Resolution
		check      func(t *testing.T, cerr *plan.ContractViolationError)
	}{
		{
			name:       "unaccounted nodes",
			resolution: fixsource.Resolution{Nodes: []string{"kermit"}, Fix: mustTask(t, "t")},
			check: func(t *testing.T, cerr *plan.ContractViolationError) {
				assert.Equal(t, []string{"gonzo"}, cerr.Unaccounted)
			},
		},
		{
			name:       "foreign nodes",
			resolution: fixsource.Resolution{Nodes: []string{"gonzo", "kermit", "intruder"}, Fix: mustTask(t, "t")},
			check: func(t *testing.T, cerr *plan.ContractViolationError) {
				assert.Equal(t, []string{"intruder"}, cerr.Foreign)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(t, "remediate")
			b.AddBenchmark(benchmark.New("id", "cis", "1.0", "Linux", nil))
			require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit", "gonzo"))

			provider := &stubProvider{fn: func(issue.Issue, []string, map[string]any) ([]fixsource.Resolution, error) {
				return []fixsource.Resolution{tc.resolution}, nil
			}}

			_, err := b.Produce(context.Background(), provider)
			require.Error(t, err)

			var cerr *plan.ContractViolationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, "cis:/1.1.1_x", cerr.Ref)
			tc.check(t, cerr)
		})
	}
}

func TestProduce_ProviderReceivesAllFacts(t *testing.T) {
	b := newTestBuilder(t, "remediate")
	b.AddBenchmark(benchmark.New("bench-id", "cis", "2.0", "Linux", map[string]any{"os": "rhel"}))
	require.NoError(t, b.AddReportedIssue(issue.New("cis", "1.1.1", "x"), "kermit"))

	var gotFacts map[string]any
	provider := &stubProvider{fn: func(_ issue.Issue, nodes []string, facts map[string]any) ([]fixsource.Resolution, error) {
		gotFacts = facts
		return []fixsource.Resolution{{Nodes: nodes, Fix: fix.None()}}, nil
	}}

	_, err := b.Produce(context.Background(), provider)
	require.NoError(t, err)

	require.NotNil(t, gotFacts)
	assert.Equal(t, "rhel", gotFacts["os"])
	bm, ok := gotFacts["benchmark"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cis", bm["name"])
	assert.Equal(t, "2.0", bm["version"])
}

func mustTask(t *testing.T, name string) fix.TaskFix {
	t.Helper()
	f, err := fix.NewTask(name, nil)
	require.NoError(t, err)
	return f
}
