package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JNZader/rosie/internal/normalize"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleAnnotations() []normalize.Annotation {
	return []normalize.Annotation{
		{
			Filename: "/src/app.py", RuleID: "1", RuleName: "no-eval", RulesetName: "python-security",
			Message: "eval is dangerous", Severity: normalize.SeverityCritical, Category: normalize.CategorySecurity,
			StartOffset: 10, EndOffset: 20, Start: normalize.Position{Line: 2, Col: 1},
		},
		{
			Filename: "/src/app.py", RuleID: "2", RuleName: "line-length", RulesetName: "python-style",
			Message: "line too long", Severity: normalize.SeverityInformational, Category: normalize.CategoryCodeStyle,
			StartOffset: 30, EndOffset: 130, Start: normalize.Position{Line: 4, Col: 1},
		},
		{
			Filename: "/lib/util.py", RuleID: "1", RuleName: "no-eval", RulesetName: "python-security",
			Message: "eval is dangerous", Severity: normalize.SeverityCritical, Category: normalize.CategorySecurity,
			StartOffset: 0, EndOffset: 4, Start: normalize.Position{Line: 1, Col: 1},
		},
	}
}

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStore(StoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestRecordAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "run-1", sampleAnnotations()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	result, err := store.Search(ctx, SearchQuery{Text: "eval"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", result.TotalCount)
	}

	result, err = store.Search(ctx, SearchQuery{File: "/src/*"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(result.Records))
	}
	first := result.Records[0]
	if first.RuleName != "no-eval" || first.Severity != "critical" || first.Line != 2 || first.RunID != "run-1" {
		t.Errorf("first record = %+v", first)
	}
}

func TestSearch_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "run-1", sampleAnnotations()[:2]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, "run-2", sampleAnnotations()[2:]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	tests := []struct {
		name  string
		query SearchQuery
		want  int64
	}{
		{"all", SearchQuery{}, 3},
		{"ruleset", SearchQuery{Ruleset: "python-style"}, 1},
		{"run", SearchQuery{RunID: "run-2"}, 1},
		{"min severity", SearchQuery{MinSeverity: "error"}, 2},
		{"min severity info", SearchQuery{MinSeverity: "informational"}, 3},
		{"future", SearchQuery{Since: time.Now().Add(time.Hour)}, 0},
		{"combined", SearchQuery{Ruleset: "python-security", File: "/lib/*"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := store.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if result.TotalCount != tt.want {
				t.Errorf("TotalCount = %d, want %d", result.TotalCount, tt.want)
			}
		})
	}
}

func TestSearch_Pagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "run-1", sampleAnnotations()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	result, err := store.Search(ctx, SearchQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", result.TotalCount)
	}
	if len(result.Records) != 1 {
		t.Errorf("len(Records) = %d, want 1", len(result.Records))
	}
}

func TestRecord_Empty(t *testing.T) {
	store := newTestStore(t)

	if err := store.Record(context.Background(), "run-1", nil); err != nil {
		t.Fatalf("Record(nil) failed: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "run-1", sampleAnnotations()[:2]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, "run-2", sampleAnnotations()[2:]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalAnnotations != 3 {
		t.Errorf("TotalAnnotations = %d, want 3", stats.TotalAnnotations)
	}
	if stats.Runs != 2 {
		t.Errorf("Runs = %d, want 2", stats.Runs)
	}
	if stats.BySeverity["critical"] != 2 {
		t.Errorf("BySeverity[critical] = %d, want 2", stats.BySeverity["critical"])
	}
	if stats.ByRuleset["python-security"] != 2 {
		t.Errorf("ByRuleset[python-security] = %d, want 2", stats.ByRuleset["python-security"])
	}
	if stats.ByFile["/src/app.py"] != 2 {
		t.Errorf("ByFile[/src/app.py] = %d, want 2", stats.ByFile["/src/app.py"])
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	store.now = func() time.Time { return past }
	if err := store.Record(ctx, "old", sampleAnnotations()[:1]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	store.now = time.Now
	if err := store.Record(ctx, "new", sampleAnnotations()[1:]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	result, err := store.Search(ctx, SearchQuery{Text: "eval"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 1 {
		t.Errorf("TotalCount after prune = %d, want 1", result.TotalCount)
	}
}
