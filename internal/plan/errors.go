package plan

import (
	"fmt"
	"strings"
)

// UnknownBenchmarkError reports an issue whose mnemonic has no registered
// benchmark. Benchmarks must be registered before any issue referencing
// them.
type UnknownBenchmarkError struct {
	Mnemonic string
}

func (e *UnknownBenchmarkError) Error() string {
	return fmt.Sprintf("no benchmark registered for mnemonic %q", e.Mnemonic)
}

// ContractViolationError reports a fix provider that returned node subsets
// which do not partition the issue's reported node set.
type ContractViolationError struct {
	Ref string
	// Unaccounted nodes were reported but appear in no returned subset.
	Unaccounted []string
	// Foreign nodes appear in a subset but were never reported.
	Foreign []string
	// Duplicated nodes appear in more than one subset.
	Duplicated []string
}

func (e *ContractViolationError) Error() string {
	var parts []string
	if len(e.Unaccounted) > 0 {
		parts = append(parts, fmt.Sprintf("unaccounted nodes %v", e.Unaccounted))
	}
	if len(e.Foreign) > 0 {
		parts = append(parts, fmt.Sprintf("foreign nodes %v", e.Foreign))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, fmt.Sprintf("duplicated nodes %v", e.Duplicated))
	}
	return fmt.Sprintf("fix provider violated its contract for %s: %s", e.Ref, strings.Join(parts, "; "))
}
