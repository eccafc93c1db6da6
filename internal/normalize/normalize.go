package normalize

// RuleLookup resolves a rule id to its ruleset and rule names.
type RuleLookup func(ruleID string) (rulesetName, ruleName string, ok bool)

// Option configures Normalize.
type Option func(*options)

type options struct {
	lookup RuleLookup
}

// WithRuleLookup fills RuleName and RulesetName on each annotation.
func WithRuleLookup(lookup RuleLookup) Option {
	return func(o *options) { o.lookup = lookup }
}

// Stats counts what Normalize discarded.
type Stats struct {
	Input      int
	Dropped    int
	Duplicates int
	FixDropped int
}

type dedupKey struct {
	filename string
	message  string
	start    int
	end      int
}

// Normalize maps findings to annotations. Invalid findings are dropped one
// at a time; duplicates on (filename, message, start, end) keep the first.
// It has no side effects and is safe for concurrent use.
func Normalize(findings []Finding, index *LineIndex, filename string, opts ...Option) []Annotation {
	annotations, _ := NormalizeWithStats(findings, index, filename, opts...)
	return annotations
}

// NormalizeWithStats is Normalize that also reports what was discarded.
func NormalizeWithStats(findings []Finding, index *LineIndex, filename string, opts ...Option) ([]Annotation, Stats) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stats := Stats{Input: len(findings)}
	annotations := make([]Annotation, 0, len(findings))
	seen := make(map[dedupKey]struct{}, len(findings))

	for _, f := range findings {
		start, ok := index.Offset(f.Start)
		if !ok {
			stats.Dropped++
			continue
		}
		end, ok := index.Offset(f.End)
		if !ok || end <= start {
			stats.Dropped++
			continue
		}

		key := dedupKey{filename: filename, message: f.Message, start: start, end: end}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		a := Annotation{
			Filename:    filename,
			RuleID:      f.RuleID,
			Message:     f.Message,
			Severity:    f.Severity,
			Category:    f.Category,
			StartOffset: start,
			EndOffset:   end,
			Start:       f.Start,
			End:         f.End,
		}
		if a.Category == "" {
			a.Category = CategoryUnknown
		}
		if o.lookup != nil {
			if rulesetName, ruleName, found := o.lookup(f.RuleID); found {
				a.RulesetName = rulesetName
				a.RuleName = ruleName
			}
		}
		for _, fix := range f.Fixes {
			mapped, ok := mapFix(fix, index)
			if !ok {
				stats.FixDropped++
				continue
			}
			a.Fixes = append(a.Fixes, mapped)
		}

		annotations = append(annotations, a)
	}

	return annotations, stats
}

func mapFix(fix Fix, index *LineIndex) (AnnotationFix, bool) {
	if len(fix.Edits) == 0 {
		return AnnotationFix{}, false
	}
	mapped := AnnotationFix{Description: fix.Description, Edits: make([]AnnotationEdit, 0, len(fix.Edits))}
	for _, e := range fix.Edits {
		start, ok := index.Offset(e.Start)
		if !ok {
			return AnnotationFix{}, false
		}
		end := start
		switch e.Type {
		case EditAdd:
			// insertion point only
		case EditUpdate, EditRemove:
			if e.End == nil {
				return AnnotationFix{}, false
			}
			end, ok = index.Offset(*e.End)
			if !ok || end < start {
				return AnnotationFix{}, false
			}
		default:
			return AnnotationFix{}, false
		}
		mapped.Edits = append(mapped.Edits, AnnotationEdit{
			Type:        e.Type,
			StartOffset: start,
			EndOffset:   end,
			Content:     e.Content,
		})
	}
	return mapped, true
}
