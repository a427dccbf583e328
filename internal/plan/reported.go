package plan

import (
	"fmt"
	"sort"

	"github.com/planfix/planfix/internal/issue"
)

// ReportedIssue associates one Issue with the set of nodes it was observed
// on. Node accumulation is append-only; reads never expose internal state.
type ReportedIssue struct {
	iss   issue.Issue
	nodes map[string]struct{}
}

// NewReported creates a ReportedIssue for iss observed on the given nodes.
// Duplicate node names collapse.
func NewReported(iss issue.Issue, nodes ...string) *ReportedIssue {
	r := &ReportedIssue{iss: iss, nodes: make(map[string]struct{}, len(nodes))}
	r.AddNodes(nodes...)
	return r
}

// Issue returns the issue this report is about.
func (r *ReportedIssue) Issue() issue.Issue { return r.iss }

// AddNodes appends nodes to the affected set.
func (r *ReportedIssue) AddNodes(nodes ...string) {
	for _, n := range nodes {
		r.nodes[n] = struct{}{}
	}
}

// Nodes returns a sorted copy of the affected node names. Mutating the
// returned slice has no effect on the report.
func (r *ReportedIssue) Nodes() []string {
	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Merge combines two reports of the same issue into a new ReportedIssue
// holding the union of their node sets. Both operands are left unmodified.
// Reports of different issues (by identity key) cannot merge.
func (r *ReportedIssue) Merge(other *ReportedIssue) (*ReportedIssue, error) {
	if r.iss.Key() != other.iss.Key() {
		return nil, fmt.Errorf("cannot merge reports of different issues: %s vs %s", r.iss.Ref(), other.iss.Ref())
	}
	merged := NewReported(r.iss)
	for n := range r.nodes {
		merged.nodes[n] = struct{}{}
	}
	for n := range other.nodes {
		merged.nodes[n] = struct{}{}
	}
	return merged, nil
}
