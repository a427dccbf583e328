package fixsource

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/planfix/planfix/internal/fix"
)

// Spec is one declared fix mapping, not yet bound to nodes. Exactly one of
// Task, Plan, Command or Skip should be set. The optional Nodes glob scopes
// the mapping to matching hostnames; a pattern-less spec is the default for
// whatever the scoped specs leave unclaimed.
type Spec struct {
	Task    string         `yaml:"task,omitempty" json:"task,omitempty"`
	Plan    string         `yaml:"plan,omitempty" json:"plan,omitempty"`
	Command string         `yaml:"command,omitempty" json:"command,omitempty"`
	Skip    bool           `yaml:"skip,omitempty" json:"skip,omitempty"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Nodes   string         `yaml:"nodes,omitempty" json:"nodes,omitempty"`
}

// Fix materializes the spec into its fix variant.
func (s Spec) Fix() (fix.Fix, error) {
	switch {
	case s.Skip:
		return fix.Skipped(), nil
	case s.Task != "":
		return fix.NewTask(s.Task, s.Params)
	case s.Plan != "":
		return fix.NewPlan(s.Plan, s.Params)
	case s.Command != "":
		return fix.NewCommand(s.Command, s.Params)
	default:
		return fix.None(), nil
	}
}

// Level is one precedence layer of fix data: mnemonic -> section -> specs.
type Level struct {
	Name  string                       `yaml:"name"`
	Fixes map[string]map[string][]Spec `yaml:"fixes"`
}

// Fixconf is the layered fix mapping data, highest precedence level first
// (index 0 is the local/override layer).
type Fixconf struct {
	Levels []Level `yaml:"levels"`
}

// LoadFixconf reads and parses a fixconf.yaml file.
func LoadFixconf(path string) (*Fixconf, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixconf %s: %w", path, err)
	}
	var conf Fixconf
	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse fixconf %s: %w", path, err)
	}
	return &conf, nil
}
