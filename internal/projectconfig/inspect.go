package projectconfig

import (
	"fmt"

	"github.com/JNZader/rosie/internal/cache"
)

// RulesetStatuser reports what is known about a ruleset name.
type RulesetStatuser interface {
	RulesetStatus(name string) cache.RulesetStatus
}

// Diagnostic is a problem found in a config file, positioned for display.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Ruleset string `json:"ruleset"`
	Message string `json:"message"`
}

// Inspect reports invalid, unknown and empty rulesets declared in parsed.
// It is meant to run again after every cache refresh.
func Inspect(parsed Parsed, status RulesetStatuser) []Diagnostic {
	var diags []Diagnostic
	for _, e := range parsed.Entries {
		d := Diagnostic{Line: e.Line, Column: e.Column, Ruleset: e.Name}
		switch {
		case !e.Valid:
			d.Message = fmt.Sprintf("invalid ruleset name %q", e.Name)
		case status == nil:
			continue
		case status.RulesetStatus(e.Name) == cache.RulesetUnknown:
			d.Message = fmt.Sprintf("ruleset %q does not exist", e.Name)
		case status.RulesetStatus(e.Name) == cache.RulesetEmpty:
			d.Message = fmt.Sprintf("ruleset %q has no rules", e.Name)
		default:
			continue
		}
		diags = append(diags, d)
	}
	return diags
}
