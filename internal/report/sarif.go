package report

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/normalize"
)

// SARIFReporter generates SARIF 2.1.0 reports.
type SARIFReporter struct{}

func (r *SARIFReporter) Format() string { return "sarif" }

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Properties sarifProperties `json:"properties"`
}

type sarifProperties struct {
	Ruleset  string `json:"ruleset,omitempty"`
	Category string `json:"category,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifRegion struct {
	StartLine   int  `json:"startLine,omitempty"`
	EndLine     int  `json:"endLine,omitempty"`
	StartColumn int  `json:"startColumn,omitempty"`
	EndColumn   int  `json:"endColumn,omitempty"`
	CharOffset  *int `json:"charOffset,omitempty"`
	CharLength  *int `json:"charLength,omitempty"`
}

type sarifFix struct {
	Description     sarifMessage          `json:"description"`
	ArtifactChanges []sarifArtifactChange `json:"artifactChanges"`
}

type sarifArtifactChange struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Replacements     []sarifReplacement    `json:"replacements"`
}

type sarifReplacement struct {
	DeletedRegion   sarifRegion   `json:"deletedRegion"`
	InsertedContent *sarifMessage `json:"insertedContent,omitempty"`
}

func (r *SARIFReporter) Generate(result *analysis.Result) (string, error) {
	report := r.buildReport(result)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *SARIFReporter) Write(result *analysis.Result, w io.Writer) error {
	report := r.buildReport(result)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (r *SARIFReporter) buildReport(result *analysis.Result) *sarifReport {
	run := sarifRun{
		Tool: sarifTool{
			Driver: sarifDriver{
				Name:    "rosie",
				Version: ToolVersion,
			},
		},
		Results: []sarifResult{},
	}

	seenRules := make(map[string]sarifRule)
	for _, file := range result.Files {
		uri := strings.TrimPrefix(file.RelPath, "/")
		for _, a := range file.Annotations {
			id := ruleID(a)
			if _, ok := seenRules[id]; !ok {
				seenRules[id] = sarifRule{
					ID:         id,
					Name:       a.RuleName,
					Properties: sarifProperties{Ruleset: a.RulesetName, Category: string(a.Category)},
				}
			}

			res := sarifResult{
				RuleID:  id,
				Level:   mapLevel(a.Severity),
				Message: sarifMessage{Text: a.Message},
				Locations: []sarifLocation{{PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: uri},
					Region:           region(a.Start, a.End, a.StartOffset, a.EndOffset),
				}}},
			}
			for _, fix := range a.Fixes {
				res.Fixes = append(res.Fixes, buildFix(uri, fix))
			}
			run.Results = append(run.Results, res)
		}
	}

	for _, rule := range seenRules {
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, rule)
	}
	sort.Slice(run.Tool.Driver.Rules, func(i, j int) bool {
		return run.Tool.Driver.Rules[i].ID < run.Tool.Driver.Rules[j].ID
	})

	return &sarifReport{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
}

// ruleID prefers the readable ruleset/rule name over the server id.
func ruleID(a normalize.Annotation) string {
	if a.RulesetName != "" && a.RuleName != "" {
		return a.RulesetName + "/" + a.RuleName
	}
	return a.RuleID
}

func region(start, end normalize.Position, startOffset, endOffset int) *sarifRegion {
	length := endOffset - startOffset
	return &sarifRegion{
		StartLine:   start.Line,
		EndLine:     end.Line,
		StartColumn: start.Col,
		EndColumn:   end.Col,
		CharOffset:  &startOffset,
		CharLength:  &length,
	}
}

func buildFix(uri string, fix normalize.AnnotationFix) sarifFix {
	change := sarifArtifactChange{ArtifactLocation: sarifArtifactLocation{URI: uri}}
	for _, e := range fix.Edits {
		offset, length := e.StartOffset, e.EndOffset-e.StartOffset
		repl := sarifReplacement{DeletedRegion: sarifRegion{CharOffset: &offset, CharLength: &length}}
		if e.Type != normalize.EditRemove {
			repl.InsertedContent = &sarifMessage{Text: e.Content}
		}
		change.Replacements = append(change.Replacements, repl)
	}
	return sarifFix{Description: sarifMessage{Text: fix.Description}, ArtifactChanges: []sarifArtifactChange{change}}
}

func mapLevel(severity normalize.Severity) string {
	switch severity {
	case normalize.SeverityCritical, normalize.SeverityError:
		return "error"
	case normalize.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
