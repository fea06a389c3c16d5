// Package applicability implements the CPE applicability expression tree:
// the logical combinators (AND/OR/NOT), version ranges, the top-level
// Configurations list, their canonical textual serialization, and their
// matching semantics against a target CPE.
package applicability

import "github.com/trailofbits/cvedb/src/cpe"

// Node is any element of an applicability tree. The method set is closed
// to the types defined in this package: CPELeaf, And, Or, Not,
// VersionRange.
type Node interface {
	// Match reports whether the node matches target, considering the
	// version field.
	Match(target cpe.CPE) bool

	tag() byte
	matchInternal(target cpe.CPE, includeVersion bool) bool
	dump(w *dumper)
	collectVulnerable(negated bool, out *[]cpe.CPE)
}

// CPELeaf wraps a single concrete CPE pattern.
type CPELeaf struct {
	CPE cpe.CPE
}

func (n CPELeaf) tag() byte { return 'c' }

func (n CPELeaf) Match(target cpe.CPE) bool { return n.matchInternal(target, true) }

func (n CPELeaf) matchInternal(target cpe.CPE, includeVersion bool) bool {
	return cpe.Match(n.CPE, target, includeVersion)
}

func (n CPELeaf) collectVulnerable(negated bool, out *[]cpe.CPE) {
	if !negated {
		*out = append(*out, n.CPE)
	}
}

// And matches when all of its children match, XOR'd with Negate.
type And struct {
	Children []Node
	Negate   bool
}

func (n And) tag() byte { return 'a' }

func (n And) Match(target cpe.CPE) bool { return n.matchInternal(target, true) }

func (n And) matchInternal(target cpe.CPE, includeVersion bool) bool {
	all := true
	for _, c := range n.Children {
		if !c.matchInternal(target, includeVersion) {
			all = false
			break
		}
	}
	return all != n.Negate
}

func (n And) collectVulnerable(negated bool, out *[]cpe.CPE) {
	child := negated != n.Negate
	for _, c := range n.Children {
		c.collectVulnerable(child, out)
	}
}

// Or matches when any of its children match, XOR'd with Negate.
type Or struct {
	Children []Node
	Negate   bool
}

func (n Or) tag() byte { return 'o' }

func (n Or) Match(target cpe.CPE) bool { return n.matchInternal(target, true) }

func (n Or) matchInternal(target cpe.CPE, includeVersion bool) bool {
	any := false
	for _, c := range n.Children {
		if c.matchInternal(target, includeVersion) {
			any = true
			break
		}
	}
	return any != n.Negate
}

func (n Or) collectVulnerable(negated bool, out *[]cpe.CPE) {
	child := negated != n.Negate
	for _, c := range n.Children {
		c.collectVulnerable(child, out)
	}
}

// Not inverts the match of its wrapped node.
type Not struct {
	Wrapped Node
}

func (n Not) tag() byte { return '!' }

func (n Not) Match(target cpe.CPE) bool { return n.matchInternal(target, true) }

func (n Not) matchInternal(target cpe.CPE, includeVersion bool) bool {
	return !n.Wrapped.matchInternal(target, includeVersion)
}

func (n Not) collectVulnerable(negated bool, out *[]cpe.CPE) {
	n.Wrapped.collectVulnerable(!negated, out)
}

// VersionRange restricts the version field of its wrapped node to the
// interval [Start, End], with Start/End nil meaning unbounded, and
// IncludeStart/IncludeEnd selecting inclusive vs. exclusive comparison.
type VersionRange struct {
	Wrapped      Node
	Start        *string
	End          *string
	IncludeStart bool
	IncludeEnd   bool
}

func (n VersionRange) tag() byte { return 'v' }

func (n VersionRange) Match(target cpe.CPE) bool { return n.matchInternal(target, true) }

func (n VersionRange) matchInternal(target cpe.CPE, includeVersion bool) bool {
	if includeVersion && target.Version.Logical == cpe.Concrete {
		v := target.Version.Value
		if n.Start != nil {
			if n.IncludeStart {
				if v < *n.Start {
					return false
				}
			} else if v <= *n.Start {
				return false
			}
		}
		if n.End != nil {
			if n.IncludeEnd {
				if v > *n.End {
					return false
				}
			} else if v >= *n.End {
				return false
			}
		}
	}
	return n.Wrapped.matchInternal(target, false)
}

func (n VersionRange) collectVulnerable(negated bool, out *[]cpe.CPE) {
	n.Wrapped.collectVulnerable(negated, out)
}

// Configurations is the top-level, ordered list of applicability trees
// attached to a CVE. It matches if any tree matches.
type Configurations struct {
	Nodes []Node
}

// Match reports whether any configuration tree matches target.
func (c Configurations) Match(target cpe.CPE) bool {
	for _, n := range c.Nodes {
		if n.matchInternal(target, true) {
			return true
		}
	}
	return false
}

// VulnerableCPEs enumerates the concrete CPE leaves reachable without
// crossing a negation, across every tree in c.
func (c Configurations) VulnerableCPEs() []cpe.CPE {
	var out []cpe.CPE
	for _, n := range c.Nodes {
		n.collectVulnerable(false, &out)
	}
	return out
}
