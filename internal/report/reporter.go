// Package report renders analysis results.
package report

import (
	"fmt"
	"io"

	"github.com/JNZader/rosie/internal/analysis"
)

// Reporter defines the interface for generating analysis reports.
type Reporter interface {
	// Generate creates a report from analysis results.
	Generate(result *analysis.Result) (string, error)

	// Write writes the report to a writer.
	Write(result *analysis.Result, w io.Writer) error

	// Format returns the format name.
	Format() string
}

// ToolVersion is reported in SARIF output.
var ToolVersion = "dev"

// NewReporter creates a reporter for the given format.
func NewReporter(format string) (Reporter, error) {
	switch format {
	case "markdown", "md":
		return &MarkdownReporter{}, nil
	case "json":
		return &JSONReporter{Indent: true}, nil
	case "sarif":
		return &SARIFReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

// AvailableFormats returns the list of supported formats.
func AvailableFormats() []string {
	return []string{"markdown", "json", "sarif"}
}
