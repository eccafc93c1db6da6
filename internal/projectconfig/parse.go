// Package projectconfig discovers and parses the per-project rosie.yml file
// that selects rulesets and declares ignore rules.
package projectconfig

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JNZader/rosie/internal/rules"
)

var rulesetNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{4,31}$`)

// ValidRulesetName reports whether name is an acceptable ruleset name.
func ValidRulesetName(name string) bool {
	return rulesetNamePattern.MatchString(name)
}

// Parsed is the content of a config file.
type Parsed struct {
	Rulesets []string
	Ignore   rules.IgnoreConfig

	// Entries records where each ruleset name was declared, including invalid ones.
	Entries []Entry
}

// Entry is one item of the rulesets list.
type Entry struct {
	Name   string
	Line   int
	Column int
	Valid  bool
}

// Parse reads a config file. It never fails: malformed YAML or an
// unexpected structure yields no rulesets and no ignore rules.
//
//	rulesets:
//	  - python-ruleset
//	ignore:
//	  - python-ruleset:
//	    - rule_2
//	    - rule_3:
//	      - prefix: /src/generated
func Parse(text string) Parsed {
	out := Parsed{Rulesets: []string{}, Ignore: rules.IgnoreConfig{}}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return out
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return out
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return out
	}

	if node := mappingValue(root, "rulesets"); node != nil {
		parseRulesets(node, &out)
	}
	if node := mappingValue(root, "ignore"); node != nil {
		parseIgnore(node, out.Ignore)
	}
	return out
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func parseRulesets(node *yaml.Node, out *Parsed) {
	if node.Kind != yaml.SequenceNode {
		return
	}
	seen := make(map[string]bool)
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			continue
		}
		name := strings.TrimSpace(item.Value)
		valid := ValidRulesetName(name)
		out.Entries = append(out.Entries, Entry{Name: name, Line: item.Line, Column: item.Column, Valid: valid})
		if !valid || seen[name] {
			continue
		}
		seen[name] = true
		out.Rulesets = append(out.Rulesets, name)
	}
}

// parseIgnore accepts a sequence of single-key mappings or a plain mapping
// of ruleset name to rule list.
func parseIgnore(node *yaml.Node, ignore rules.IgnoreConfig) {
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.MappingNode {
				parseIgnoreRulesets(item, ignore)
			}
		}
	case yaml.MappingNode:
		parseIgnoreRulesets(node, ignore)
	}
}

func parseIgnoreRulesets(m *yaml.Node, ignore rules.IgnoreConfig) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		ruleset := strings.TrimSpace(m.Content[i].Value)
		if ruleset == "" {
			continue
		}
		value := m.Content[i+1]
		switch value.Kind {
		case yaml.SequenceNode:
			for _, rule := range value.Content {
				parseIgnoreRule(ruleset, rule, ignore)
			}
		case yaml.MappingNode:
			parseIgnoreRule(ruleset, value, ignore)
		}
	}
}

func parseIgnoreRule(ruleset string, node *yaml.Node, ignore rules.IgnoreConfig) {
	switch node.Kind {
	case yaml.ScalarNode:
		if name := strings.TrimSpace(node.Value); name != "" {
			ignore.Add(ruleset, name)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := strings.TrimSpace(node.Content[i].Value)
			if name == "" {
				continue
			}
			ignore.Add(ruleset, name, collectPrefixes(node.Content[i+1])...)
		}
	}
}

// collectPrefixes reads `- prefix: x`, `- prefix: [x, y]` or `prefix: x`.
func collectPrefixes(node *yaml.Node) []string {
	var prefixes []string
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			prefixes = append(prefixes, collectPrefixes(item)...)
		}
	case yaml.MappingNode:
		if value := mappingValue(node, "prefix"); value != nil {
			prefixes = append(prefixes, scalarValues(value)...)
		}
	}
	return prefixes
}

func scalarValues(node *yaml.Node) []string {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return nil
		}
		return []string{node.Value}
	case yaml.SequenceNode:
		var values []string
		for _, item := range node.Content {
			values = append(values, scalarValues(item)...)
		}
		return values
	}
	return nil
}
