// Package fix defines the closed family of remediation actions a plan can
// invoke, and how each renders into Bolt plan text.
package fix

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fix is one renderable remediation action. The variant set is closed: the
// unexported marker method keeps external packages from adding variants the
// renderer has never seen.
type Fix interface {
	// RequiresTargets reports whether the rendered call takes a target
	// node list. Synthetic fixes (None, Skipped) do not.
	RequiresTargets() bool
	// Render produces the plan line for this fix. targetsVar is the
	// target-variable reference (e.g. "$targets_0") and is ignored by
	// synthetic fixes.
	Render(targetsVar string) string

	isFix()
}

// InvalidParamsError reports a fix parameter whose value is not a renderable
// primitive.
type InvalidParamsError struct {
	Key   string
	Value any
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("fix parameter %q has non-primitive value of type %T", e.Key, e.Value)
}

// TaskFix runs a named Bolt task against the targets.
type TaskFix struct {
	Name   string
	Params map[string]any
}

// PlanFix runs a named Bolt plan against the targets.
type PlanFix struct {
	Name   string
	Params map[string]any
}

// CommandFix runs a shell command against the targets.
type CommandFix struct {
	Command string
	Params  map[string]any
}

// NoFix is the synthetic "nothing to do" outcome. It renders as a comment.
type NoFix struct{}

// SkippedFix is the synthetic outcome for an issue deliberately left alone.
type SkippedFix struct{}

// NewTask builds a TaskFix, validating that every parameter value is a
// renderable primitive.
func NewTask(name string, params map[string]any) (TaskFix, error) {
	if err := validateParams(params); err != nil {
		return TaskFix{}, err
	}
	return TaskFix{Name: name, Params: params}, nil
}

// NewPlan builds a PlanFix with validated parameters.
func NewPlan(name string, params map[string]any) (PlanFix, error) {
	if err := validateParams(params); err != nil {
		return PlanFix{}, err
	}
	return PlanFix{Name: name, Params: params}, nil
}

// NewCommand builds a CommandFix with validated parameters.
func NewCommand(command string, params map[string]any) (CommandFix, error) {
	if err := validateParams(params); err != nil {
		return CommandFix{}, err
	}
	return CommandFix{Command: command, Params: params}, nil
}

// None returns the shared no-op fix.
func None() NoFix { return NoFix{} }

// Skipped returns the shared skipped fix.
func Skipped() SkippedFix { return SkippedFix{} }

func (TaskFix) isFix()    {}
func (PlanFix) isFix()    {}
func (CommandFix) isFix() {}
func (NoFix) isFix()      {}
func (SkippedFix) isFix() {}

func (TaskFix) RequiresTargets() bool    { return true }
func (PlanFix) RequiresTargets() bool    { return true }
func (CommandFix) RequiresTargets() bool { return true }
func (NoFix) RequiresTargets() bool      { return false }
func (SkippedFix) RequiresTargets() bool { return false }

func (f TaskFix) Render(targetsVar string) string {
	return renderCall("run_task", quote(f.Name), targetsVar, f.Params)
}

func (f PlanFix) Render(targetsVar string) string {
	return renderCall("run_plan", quote(f.Name), targetsVar, f.Params)
}

func (f CommandFix) Render(targetsVar string) string {
	return renderCall("run_command", quote(f.Command), targetsVar, f.Params)
}

func (NoFix) Render(string) string {
	return "# No fix defined for this issue"
}

func (SkippedFix) Render(string) string {
	return "# Fix skipped for this issue"
}

// renderCall assembles "<fn>(<subject>, <targets>, 'k' => v, )". The target
// variable always precedes parameters, parameters render in sorted key
// order, and the dangling comma before the closing paren is deliberate: it
// matches the plan dialect's tolerant call syntax and keeps diffs stable
// when parameters are appended.
func renderCall(fn, subject, targetsVar string, params map[string]any) string {
	var sb strings.Builder
	sb.WriteString(fn)
	sb.WriteString("(")
	sb.WriteString(subject)
	sb.WriteString(", ")
	sb.WriteString(targetsVar)
	sb.WriteString(", ")

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(quote(k))
		sb.WriteString(" => ")
		sb.WriteString(renderValue(params[k]))
		sb.WriteString(", ")
	}

	sb.WriteString(")")
	return sb.String()
}

// renderValue renders a primitive parameter value: strings single-quoted,
// everything else literal.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		// validateParams rejects anything else at construction.
		return fmt.Sprintf("%v", t)
	}
}

func validateParams(params map[string]any) error {
	for k, v := range params {
		switch v.(type) {
		case string, bool, int, int64, float64:
		default:
			return &InvalidParamsError{Key: k, Value: v}
		}
	}
	return nil
}

// quote single-quotes a string for plan text, escaping backslashes and
// embedded single quotes.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
