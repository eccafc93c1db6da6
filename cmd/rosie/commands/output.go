package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteOutput writes the report to a file, or to w when outputPath is empty.
func WriteOutput(w io.Writer, content, outputPath string) error {
	if outputPath == "" {
		_, err := io.WriteString(w, content)
		return err
	}

	if err := ensureDir(filepath.Dir(outputPath)); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	if !isQuiet() {
		fmt.Fprintf(os.Stderr, "Report written to: %s\n", outputPath)
	}
	return nil
}

// DetectFormatFromPath infers the output format from file extension.
func DetectFormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".sarif":
		return "sarif"
	case ".md", ".markdown":
		return "markdown"
	default:
		return ""
	}
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
