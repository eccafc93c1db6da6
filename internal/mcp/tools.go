package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/history"
	"github.com/JNZader/rosie/internal/projectconfig"
	"github.com/JNZader/rosie/internal/rules"
)

// HistorySearcher is the part of the history store the tools use.
type HistorySearcher interface {
	Search(ctx context.Context, q history.SearchQuery) (*history.SearchResult, error)
}

// ConfigLocator finds the project config file.
type ConfigLocator interface {
	Locate() (projectconfig.File, bool, error)
}

// Deps are the project components the tools read. History is optional.
type Deps struct {
	Cache   *cache.RulesCache
	Engine  *analysis.Engine
	Config  ConfigLocator
	History HistorySearcher
}

// RegisterTools registers the rosie tools for one project.
func RegisterTools(s *Server, d Deps) error {
	fileSchema := objectSchema(map[string]interface{}{
		"file": stringProp("File path, absolute or relative to the project root"),
	}, "file")

	tools := []struct {
		tool    *Tool
		handler ToolHandler
	}{
		{
			tool: &Tool{
				Name:        "rosie_rules",
				Description: "List the rules that apply to a file after the project's ignore configuration.",
				InputSchema: fileSchema,
			},
			handler: d.handleRules,
		},
		{
			tool: &Tool{
				Name:        "rosie_analyze",
				Description: "Analyze a file with its applicable rules and return the annotations.",
				InputSchema: fileSchema,
			},
			handler: d.handleAnalyze,
		},
		{
			tool: &Tool{
				Name:        "rosie_check_config",
				Description: "Report invalid, unknown and empty rulesets declared in rosie.yml.",
				InputSchema: objectSchema(map[string]interface{}{}),
			},
			handler: d.handleCheckConfig,
		},
		{
			tool: &Tool{
				Name:        "rosie_cache_stats",
				Description: "Show what the rules cache currently holds.",
				InputSchema: objectSchema(map[string]interface{}{}),
			},
			handler: d.handleCacheStats,
		},
	}

	for _, t := range tools {
		if err := s.RegisterTool(t.tool, t.handler); err != nil {
			return err
		}
	}

	if d.History == nil {
		return nil
	}
	return s.RegisterTool(&Tool{
		Name:        "rosie_history_search",
		Description: "Search annotations recorded by past analysis runs.",
		InputSchema: objectSchema(map[string]interface{}{
			"query": stringProp("Full-text query on the message"),
			"file":  stringProp("Filter by file, * as wildcard"),
			"minSeverity": map[string]interface{}{
				"type": "string",
				"enum": []string{"informational", "warning", "error", "critical"},
			},
			"limit": map[string]interface{}{"type": "integer", "minimum": 1, "default": 20},
		}),
	}, d.handleHistorySearch)
}

// ruleSummary is a rule without its body.
type ruleSummary struct {
	ID      string `json:"id"`
	Ruleset string `json:"ruleset"`
	Name    string `json:"name"`
}

func (d Deps) handleRules(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := d.fileArg(args)
	if err != nil {
		return nil, err
	}
	lang := rules.LanguageFromPath(path)
	records := d.Cache.GetRules(lang, path)

	summaries := make([]ruleSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, ruleSummary{ID: r.RuleID, Ruleset: r.RulesetName, Name: r.RuleName})
	}
	return map[string]interface{}{
		"file":     path,
		"language": lang,
		"rules":    summaries,
	}, nil
}

func (d Deps) handleAnalyze(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := d.fileArg(args)
	if err != nil {
		return nil, err
	}
	fr := d.Engine.AnalyzeFile(ctx, path)
	if fr.Error != nil {
		return nil, fr.Error
	}
	return fr, nil
}

func (d Deps) handleCheckConfig(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	file, found, err := d.Config.Locate()
	if err != nil {
		return nil, err
	}
	if !found {
		return "No rosie.yml in the project root", nil
	}
	diags := projectconfig.Inspect(projectconfig.Parse(file.Text), d.Cache)
	if len(diags) == 0 {
		return fmt.Sprintf("%s: no problems", file.Path), nil
	}
	return map[string]interface{}{"file": file.Path, "diagnostics": diags}, nil
}

func (d Deps) handleCacheStats(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"stats":    d.Cache.Stats(),
		"rulesets": d.Cache.RulesetNames(),
	}, nil
}

func (d Deps) handleHistorySearch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	q := history.SearchQuery{
		Text:        stringArg(args, "query"),
		File:        stringArg(args, "file"),
		MinSeverity: stringArg(args, "minSeverity"),
		Limit:       20,
	}
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		q.Limit = int(limit)
	}
	return d.History.Search(ctx, q)
}

// fileArg resolves the "file" argument against the project root.
func (d Deps) fileArg(args map[string]interface{}) (string, error) {
	file := stringArg(args, "file")
	if file == "" {
		return "", fmt.Errorf("file is required")
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(d.Cache.Root(), file)
	}
	return filepath.Clean(file), nil
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
