// Package report loads the tool's two input files: the scan report of
// observed issues and the benchmark registry.
package report

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/planfix/planfix/internal/issue"
	"github.com/planfix/planfix/internal/plan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one observed issue in a scan report: a canonical issue
// reference plus the nodes it was seen on. Ignore marks the issue to be
// rendered as skipped instead of resolved.
type Record struct {
	Ref    string   `json:"ref"`
	Nodes  []string `json:"nodes"`
	Ignore bool     `json:"ignore,omitempty"`
}

// Report is a parsed scan report.
type Report struct {
	Issues []Record `json:"issues"`
}

// Decode parses a scan report from r.
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode scan report: %w", err)
	}
	return &rep, nil
}

// Load reads and parses the scan report at path.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan report %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Apply registers every record with the builder. Records marked Ignore are
// still reported (so they appear in the plan) and then flagged as ignored.
func (rep *Report) Apply(b *plan.Builder) error {
	for _, rec := range rep.Issues {
		iss, err := issue.Parse(rec.Ref)
		if err != nil {
			return err
		}
		if err := b.AddReportedIssue(iss, rec.Nodes...); err != nil {
			return fmt.Errorf("registering issue %s: %w", rec.Ref, err)
		}
		if rec.Ignore {
			if err := b.IgnoreReportedIssue(iss); err != nil {
				return fmt.Errorf("ignoring issue %s: %w", rec.Ref, err)
			}
		}
	}
	return nil
}
