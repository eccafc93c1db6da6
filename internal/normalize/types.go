// Package normalize converts raw line/column findings from the analysis
// service into deduplicated, editor-ready character offset annotations.
package normalize

import (
	"fmt"
	"strings"
)

// Severity is ordered: Informational < Warning < Error < Critical.
type Severity int

const (
	SeverityInformational Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "informational"
	}
}

// ParseSeverity is case-insensitive. Unknown or empty values map to the
// weakest level.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "error":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	default:
		return SeverityInformational
	}
}

// Highlight returns the highlight strength an editor should use.
func (s Severity) Highlight() string {
	switch s {
	case SeverityCritical, SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "weak_warning"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}

// Category classifies a finding.
type Category string

const (
	CategoryBestPractice Category = "best_practice"
	CategoryCodeStyle    Category = "code_style"
	CategoryDesign       Category = "design"
	CategoryErrorProne   Category = "error_prone"
	CategoryPerformance  Category = "performance"
	CategorySafety       Category = "safety"
	CategorySecurity     Category = "security"
	CategoryUnknown      Category = "unknown"
)

// ParseCategory accepts server spellings such as "BEST_PRACTICE" or "code-style".
func ParseCategory(s string) Category {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch c := Category(normalized); c {
	case CategoryBestPractice, CategoryCodeStyle, CategoryDesign, CategoryErrorProne,
		CategoryPerformance, CategorySafety, CategorySecurity:
		return c
	default:
		return CategoryUnknown
	}
}

// Position is a 1-based line/column pair.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// EditType is the kind of a fix edit.
type EditType string

const (
	EditAdd    EditType = "add"
	EditUpdate EditType = "update"
	EditRemove EditType = "remove"
)

// Edit is one step of a suggested fix. End is nil only for an insertion.
type Edit struct {
	Type    EditType  `json:"edit_type"`
	Start   Position  `json:"start"`
	End     *Position `json:"end,omitempty"`
	Content string    `json:"content,omitempty"`
}

// Fix is an ordered list of edits.
type Fix struct {
	Description string `json:"description"`
	Edits       []Edit `json:"edits"`
}

// Finding is a raw rule violation reported by the analysis service.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Start    Position `json:"start"`
	End      Position `json:"end"`
	Fixes    []Fix    `json:"fixes,omitempty"`
}

// AnnotationEdit is an Edit mapped to document offsets.
type AnnotationEdit struct {
	Type        EditType `json:"edit_type"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Content     string   `json:"content,omitempty"`
}

// AnnotationFix is a Fix mapped to document offsets.
type AnnotationFix struct {
	Description string           `json:"description"`
	Edits       []AnnotationEdit `json:"edits"`
}

// Annotation is a normalized finding. StartOffset <= EndOffset and both lie
// within the document.
type Annotation struct {
	Filename    string          `json:"filename"`
	RuleID      string          `json:"rule_id"`
	RuleName    string          `json:"rule_name,omitempty"`
	RulesetName string          `json:"ruleset_name,omitempty"`
	Message     string          `json:"message"`
	Severity    Severity        `json:"severity"`
	Category    Category        `json:"category"`
	StartOffset int             `json:"start_offset"`
	EndOffset   int             `json:"end_offset"`
	Start       Position        `json:"start"`
	End         Position        `json:"end"`
	Fixes       []AnnotationFix `json:"fixes,omitempty"`
}
