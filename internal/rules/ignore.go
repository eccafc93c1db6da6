package rules

import "strings"

// IgnoreConfig maps ruleset name -> rule name -> path prefixes to exclude.
// A rule present with an empty prefix list is ignored everywhere.
type IgnoreConfig map[string]map[string][]string

// Add records prefixes for a rule. Calling it with no prefixes marks the
// rule as ignored for every path.
func (c IgnoreConfig) Add(ruleset, rule string, prefixes ...string) {
	byRule, ok := c[ruleset]
	if !ok {
		byRule = make(map[string][]string)
		c[ruleset] = byRule
	}
	existing, ok := byRule[rule]
	if !ok {
		existing = []string{}
	}
	byRule[rule] = append(existing, prefixes...)
}

// Prefixes returns the prefix list declared for a rule and whether an entry exists.
func (c IgnoreConfig) Prefixes(ruleset, rule string) ([]string, bool) {
	byRule, ok := c[ruleset]
	if !ok {
		return nil, false
	}
	prefixes, ok := byRule[rule]
	return prefixes, ok
}

// IsIgnored reports whether the rule must be skipped for the file at relPath.
func (c IgnoreConfig) IsIgnored(ruleset, rule, relPath string) bool {
	prefixes, ok := c.Prefixes(ruleset, rule)
	if !ok {
		return false
	}
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if PrefixMatches(prefix, relPath) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c IgnoreConfig) Clone() IgnoreConfig {
	out := make(IgnoreConfig, len(c))
	for ruleset, byRule := range c {
		copied := make(map[string][]string, len(byRule))
		for rule, prefixes := range byRule {
			copied[rule] = append([]string{}, prefixes...)
		}
		out[ruleset] = copied
	}
	return out
}

// Len returns the number of rule entries.
func (c IgnoreConfig) Len() int {
	n := 0
	for _, byRule := range c {
		n += len(byRule)
	}
	return n
}

// PrefixMatches is a case-sensitive string prefix test between a user
// declared prefix and a project-relative path. One leading separator is
// stripped from each side. Prefixes containing "..", "./" or "/." never match.
func PrefixMatches(prefix, relPath string) bool {
	if strings.Contains(prefix, "..") || strings.Contains(prefix, "./") || strings.Contains(prefix, "/.") {
		return false
	}
	return strings.HasPrefix(stripLeadingSeparator(relPath), stripLeadingSeparator(prefix))
}

func stripLeadingSeparator(s string) string {
	if strings.HasPrefix(s, "/") {
		return s[1:]
	}
	return s
}
