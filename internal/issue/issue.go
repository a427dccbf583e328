// Package issue defines the benchmark-control reference type shared by the
// plan builder and the fix sources.
package issue

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Issue identifies one control (section) of a benchmark, optionally scoped
// to a single node. Values are immutable after construction.
//
// Identity is defined over (mnemonic, section, node) only. The free-text
// name is informational: two reports of the same control with different
// titles must unify, so the name never participates in equality or hashing.
type Issue struct {
	mnemonic string
	section  string
	name     string
	node     string
}

// Key is the comparable identity of an Issue, suitable for use as a map key.
type Key struct {
	Mnemonic string
	Section  string
	Node     string
}

// MalformedReferenceError reports an issue reference string that is not a
// hierarchical (scheme-based) reference.
type MalformedReferenceError struct {
	Ref string
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("issue reference %q is not a hierarchical reference", e.Ref)
}

// New constructs an Issue that is not scoped to a node.
func New(mnemonic, section, name string) Issue {
	return Issue{mnemonic: mnemonic, section: section, name: name}
}

// NewScoped constructs an Issue scoped to a single node.
func NewScoped(mnemonic, section, name, node string) Issue {
	return Issue{mnemonic: mnemonic, section: section, name: name, node: node}
}

func (i Issue) Mnemonic() string { return i.mnemonic }
func (i Issue) Section() string  { return i.section }
func (i Issue) Name() string     { return i.name }
func (i Issue) Node() string     { return i.node }

// Key returns the identity triple of the issue.
func (i Issue) Key() Key {
	return Key{Mnemonic: i.mnemonic, Section: i.section, Node: i.node}
}

// Ref renders the canonical reference string:
//
//	<mnemonic>://<node>/<section>_<name>   when node-scoped
//	<mnemonic>:/<section>_<name>           otherwise
//
// Ref strings are the sole ordering key for plan output, so the rendering
// must stay stable.
func (i Issue) Ref() string {
	path := i.section
	switch {
	case i.section != "" && i.name != "":
		path = i.section + "_" + i.name
	case i.section == "":
		path = i.name
	}
	if i.node != "" {
		return fmt.Sprintf("%s://%s/%s", i.mnemonic, i.node, path)
	}
	return fmt.Sprintf("%s:/%s", i.mnemonic, path)
}

func (i Issue) String() string { return i.Ref() }

// sectionRe splits the path remainder into a dotted numeric control id and
// the free-text name. Runs of digits may be separated by '.', '_' or '-';
// the separator before the name is any of the same three.
var sectionRe = regexp.MustCompile(`^([0-9]+(?:[._-][0-9]+)*)(?:[._-](.*))?$`)

// Parse builds an Issue from a hierarchical reference string. The URI scheme
// is the benchmark mnemonic, the host (if any) is the node, and the path
// carries the control section followed by the name.
//
// An empty input yields a zero Issue and no error. Input without a
// recognizable scheme fails with *MalformedReferenceError.
func Parse(ref string) (Issue, error) {
	if ref == "" {
		return Issue{}, nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return Issue{}, &MalformedReferenceError{Ref: ref}
	}

	section, name := splitPath(u.Path)
	return Issue{
		mnemonic: u.Scheme,
		section:  section,
		name:     name,
		node:     u.Host,
	}, nil
}

// splitPath extracts the normalized section and the name from a reference
// path. Section separators '_' and '-' normalize to '.' so that
// "1_1_1" and "1-1-1" identify the same control as "1.1.1".
func splitPath(path string) (section, name string) {
	rest := strings.TrimLeft(path, "/")
	if rest == "" {
		return "", ""
	}
	m := sectionRe.FindStringSubmatch(rest)
	if m == nil {
		return "", rest
	}
	section = strings.NewReplacer("_", ".", "-", ".").Replace(m[1])
	return section, m[2]
}
