package rosie

import (
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/rules"
)

// Request is one file submitted for analysis.
type Request struct {
	Filename string
	Language rules.Language
	Code     string
	Rules    []rules.RuleRecord
}

type wireRule struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Language      string `json:"language"`
	ContentBase64 string `json:"content_base64"`
	Type          string `json:"type,omitempty"`
	EntityChecked string `json:"entity_checked,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
}

type wireRuleset struct {
	Name  string     `json:"name"`
	Rules []wireRule `json:"rules"`
}

type namesRequest struct {
	Names []string `json:"names"`
}

type rulesetsResponse struct {
	Rulesets []wireRuleset `json:"rulesets"`
}

type lastUpdatedResponse struct {
	Timestamp *int64 `json:"timestamp"`
}

type analysisRequest struct {
	Filename     string     `json:"filename"`
	Language     string     `json:"language"`
	FileEncoding string     `json:"file_encoding"`
	CodeBase64   string     `json:"code_base64"`
	Rules        []wireRule `json:"rules"`
	LogOutput    bool       `json:"log_output"`
}

type wirePosition struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type wireEdit struct {
	Start    wirePosition  `json:"start"`
	End      *wirePosition `json:"end"`
	EditType string        `json:"edit_type"`
	Content  string        `json:"content"`
}

type wireFix struct {
	Description string     `json:"description"`
	Edits       []wireEdit `json:"edits"`
}

type wireViolation struct {
	Start    wirePosition `json:"start"`
	End      wirePosition `json:"end"`
	Message  string       `json:"message"`
	Severity string       `json:"severity"`
	Category string       `json:"category"`
	Fixes    []wireFix    `json:"fixes"`
}

type ruleResponse struct {
	Identifier     string          `json:"identifier"`
	Violations     []wireViolation `json:"violations"`
	Errors         []string        `json:"errors"`
	ExecutionError string          `json:"execution_error"`
}

type analysisResponse struct {
	RuleResponses []ruleResponse `json:"rule_responses"`
	Errors        []string       `json:"errors"`
}

func toRuleset(w wireRuleset) rules.Ruleset {
	rs := rules.Ruleset{Name: w.Name, Rules: make([]rules.RuleRecord, 0, len(w.Rules))}
	for _, r := range w.Rules {
		id := r.ID
		if id == "" {
			id = w.Name + "/" + r.Name
		}
		rs.Rules = append(rs.Rules, rules.RuleRecord{
			RulesetName:   w.Name,
			RuleName:      r.Name,
			RuleID:        id,
			Language:      rules.ParseLanguage(r.Language),
			Body:          r.ContentBase64,
			Type:          r.Type,
			EntityChecked: r.EntityChecked,
			Pattern:       r.Pattern,
		})
	}
	return rs
}

func fromRule(r rules.RuleRecord) wireRule {
	return wireRule{
		ID:            r.RuleID,
		Name:          r.RuleName,
		Language:      string(r.Language),
		ContentBase64: r.Body,
		Type:          r.Type,
		EntityChecked: r.EntityChecked,
		Pattern:       r.Pattern,
	}
}

func toFindings(resp analysisResponse) []normalize.Finding {
	var findings []normalize.Finding
	for _, rr := range resp.RuleResponses {
		for _, v := range rr.Violations {
			f := normalize.Finding{
				RuleID:   rr.Identifier,
				Message:  v.Message,
				Severity: normalize.ParseSeverity(v.Severity),
				Category: normalize.ParseCategory(v.Category),
				Start:    normalize.Position{Line: v.Start.Line, Col: v.Start.Col},
				End:      normalize.Position{Line: v.End.Line, Col: v.End.Col},
			}
			for _, wf := range v.Fixes {
				fix := normalize.Fix{Description: wf.Description}
				for _, we := range wf.Edits {
					e := normalize.Edit{
						Type:    normalize.EditType(we.EditType),
						Start:   normalize.Position{Line: we.Start.Line, Col: we.Start.Col},
						Content: we.Content,
					}
					if we.End != nil {
						e.End = &normalize.Position{Line: we.End.Line, Col: we.End.Col}
					}
					fix.Edits = append(fix.Edits, e)
				}
				f.Fixes = append(f.Fixes, fix)
			}
			findings = append(findings, f)
		}
	}
	return findings
}
