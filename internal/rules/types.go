// Package rules defines the static-analysis rules served by the Rosie
// ruleset registry and the per-project ignore configuration applied to them.
package rules

import (
	"path/filepath"
	"strings"
)

// Language is the target language of a rule.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
	LanguageRuby       Language = "ruby"
	LanguageRust       Language = "rust"
	LanguageKotlin     Language = "kotlin"
	LanguageDocker     Language = "docker"
	LanguageYAML       Language = "yaml"
	LanguageUnknown    Language = "unknown"
)

var knownLanguages = map[string]Language{
	"python":     LanguagePython,
	"javascript": LanguageJavaScript,
	"typescript": LanguageTypeScript,
	"java":       LanguageJava,
	"go":         LanguageGo,
	"ruby":       LanguageRuby,
	"rust":       LanguageRust,
	"kotlin":     LanguageKotlin,
	"docker":     LanguageDocker,
	"dockerfile": LanguageDocker,
	"yaml":       LanguageYAML,
}

var extensionLanguages = map[string]Language{
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".java": LanguageJava,
	".go":   LanguageGo,
	".rb":   LanguageRuby,
	".rs":   LanguageRust,
	".kt":   LanguageKotlin,
	".kts":  LanguageKotlin,
	".yml":  LanguageYAML,
	".yaml": LanguageYAML,
}

// ParseLanguage converts a server or user supplied name into a Language.
// Matching is case-insensitive; unrecognized names map to LanguageUnknown.
func ParseLanguage(s string) Language {
	if lang, ok := knownLanguages[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lang
	}
	return LanguageUnknown
}

// LanguageFromPath detects the language of a file from its name.
func LanguageFromPath(path string) Language {
	base := filepath.Base(path)
	if base == "Dockerfile" || strings.HasPrefix(base, "Dockerfile.") {
		return LanguageDocker
	}
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(base))]; ok {
		return lang
	}
	return LanguageUnknown
}

// RuleRecord is a single rule as fetched from the ruleset registry.
type RuleRecord struct {
	RulesetName   string   `yaml:"ruleset" json:"ruleset"`
	RuleName      string   `yaml:"name" json:"name"`
	RuleID        string   `yaml:"id" json:"id"`
	Language      Language `yaml:"language" json:"language"`
	Body          string   `yaml:"body" json:"body"` // base64 rule source
	Type          string   `yaml:"type,omitempty" json:"type,omitempty"`
	EntityChecked string   `yaml:"entity_checked,omitempty" json:"entity_checked,omitempty"`
	Pattern       string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Key returns the ruleset-qualified rule name, unique within one cache generation.
func (r RuleRecord) Key() string {
	return r.RulesetName + "/" + r.RuleName
}

// Ruleset is a named collection of rules.
type Ruleset struct {
	Name  string       `yaml:"name" json:"name"`
	Rules []RuleRecord `yaml:"rules" json:"rules"`
}
