package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/normalize"
)

// MarkdownReporter generates Markdown reports.
type MarkdownReporter struct{}

func (r *MarkdownReporter) Format() string { return "markdown" }

func (r *MarkdownReporter) Generate(result *analysis.Result) (string, error) {
	var sb strings.Builder
	if err := r.Write(result, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (r *MarkdownReporter) Write(result *analysis.Result, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Rosie Analysis Report\n\n")

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- **Files Analyzed:** %d\n", len(result.Files))
	fmt.Fprintf(&sb, "- **Annotations:** %d\n", result.TotalAnnotations)
	fmt.Fprintf(&sb, "- **Errors:** %d\n", len(result.Errors()))
	fmt.Fprintf(&sb, "- **Duration:** %s\n\n", result.Duration)

	if result.TotalAnnotations == 0 && len(result.Errors()) == 0 {
		sb.WriteString("No issues found.\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	sb.WriteString("## Annotations\n\n")

	for _, file := range result.Files {
		if file.Error != nil {
			fmt.Fprintf(&sb, "### %s\n\nError: %v\n\n", file.RelPath, file.Error)
			continue
		}
		if len(file.Annotations) == 0 {
			continue
		}

		fmt.Fprintf(&sb, "### %s\n\n", file.RelPath)
		for _, a := range file.Annotations {
			r.writeAnnotation(&sb, a)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (r *MarkdownReporter) writeAnnotation(sb *strings.Builder, a normalize.Annotation) {
	fmt.Fprintf(sb, "#### %s [%s] %s\n\n", severityTag(a.Severity), ruleID(a), a.Message)
	fmt.Fprintf(sb, "**Location:** %s-%s (%s)\n\n", a.Start, a.End, a.Category)

	for _, fix := range a.Fixes {
		fmt.Fprintf(sb, "**Fix:** %s\n\n", fix.Description)
		for _, e := range fix.Edits {
			if e.Type == normalize.EditRemove {
				fmt.Fprintf(sb, "- remove [%d, %d)\n", e.StartOffset, e.EndOffset)
				continue
			}
			fmt.Fprintf(sb, "- %s [%d, %d): `%s`\n", e.Type, e.StartOffset, e.EndOffset, e.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
}

func severityTag(severity normalize.Severity) string {
	return "[" + strings.ToUpper(severity.String()) + "]"
}
