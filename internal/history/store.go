package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JNZader/rosie/internal/normalize"
)

const defaultSearchLimit = 100

// Store provides SQLite-based annotation history storage.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// StoreConfig configures the history store.
type StoreConfig struct {
	// Path is the SQLite database file path
	Path string
}

// NewStore opens or creates the database at cfg.Path.
func NewStore(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	store := &Store{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS annotations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			rule_name TEXT,
			ruleset_name TEXT,
			severity TEXT NOT NULL,
			severity_rank INTEGER NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			line INTEGER,
			col INTEGER,
			created_at INTEGER NOT NULL
		)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			message,
			content='annotations',
			content_rowid='id'
		)`,

		`CREATE TRIGGER IF NOT EXISTS annotations_ai AFTER INSERT ON annotations BEGIN
			INSERT INTO annotations_fts(rowid, message) VALUES (new.id, new.message);
		END`,

		`CREATE TRIGGER IF NOT EXISTS annotations_ad AFTER DELETE ON annotations BEGIN
			INSERT INTO annotations_fts(annotations_fts, rowid, message)
			VALUES ('delete', old.id, old.message);
		END`,

		`CREATE INDEX IF NOT EXISTS idx_annotations_file ON annotations(filename)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_run ON annotations(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_ruleset ON annotations(ruleset_name)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_created ON annotations(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Record saves the annotations of one run in a transaction.
func (s *Store) Record(ctx context.Context, runID string, annotations []normalize.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO annotations (
		run_id, filename, rule_id, rule_name, ruleset_name, severity, severity_rank,
		category, message, start_offset, end_offset, line, col, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	createdAt := s.now().UnixNano()
	for _, a := range annotations {
		if _, err := stmt.ExecContext(ctx,
			runID, a.Filename, a.RuleID, a.RuleName, a.RulesetName,
			a.Severity.String(), int(a.Severity), string(a.Category), a.Message,
			a.StartOffset, a.EndOffset, a.Start.Line, a.Start.Col, createdAt,
		); err != nil {
			return fmt.Errorf("inserting annotation: %w", err)
		}
	}

	return tx.Commit()
}

// Search returns annotations matching q, newest first.
func (s *Store) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var args []interface{}
	var conditions []string

	if q.Text != "" {
		conditions = append(conditions, "a.id IN (SELECT rowid FROM annotations_fts WHERE annotations_fts MATCH ?)")
		args = append(args, q.Text)
	}
	if q.File != "" {
		conditions = append(conditions, "a.filename LIKE ?")
		args = append(args, strings.ReplaceAll(q.File, "*", "%"))
	}
	if q.Ruleset != "" {
		conditions = append(conditions, "a.ruleset_name = ?")
		args = append(args, q.Ruleset)
	}
	if q.RunID != "" {
		conditions = append(conditions, "a.run_id = ?")
		args = append(args, q.RunID)
	}
	if q.MinSeverity != "" {
		conditions = append(conditions, "a.severity_rank >= ?")
		args = append(args, int(normalize.ParseSeverity(q.MinSeverity)))
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "a.created_at >= ?")
		args = append(args, q.Since.UnixNano())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM annotations a " + whereClause //nolint:gosec // Query built with parameterized args
	var totalCount int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("counting results: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	//nolint:gosec // whereClause uses placeholders only
	selectQuery := `
		SELECT id, run_id, filename, rule_id, rule_name, ruleset_name, severity, category,
		       message, start_offset, end_offset, line, col, created_at
		FROM annotations a
		` + whereClause + `
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var ruleName, rulesetName sql.NullString
		var line, col sql.NullInt64
		var createdAt int64

		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Filename, &r.RuleID, &ruleName, &rulesetName,
			&r.Severity, &r.Category, &r.Message, &r.StartOffset, &r.EndOffset,
			&line, &col, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.RuleName = ruleName.String
		r.RulesetName = rulesetName.String
		r.Line = int(line.Int64)
		r.Column = int(col.Int64)
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return &SearchResult{
		Records:    records,
		TotalCount: totalCount,
		Query:      q,
	}, nil
}

// GetStats returns aggregate statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		BySeverity: make(map[string]int64),
		ByRuleset:  make(map[string]int64),
		ByFile:     make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT run_id) FROM annotations`,
	).Scan(&stats.TotalAnnotations, &stats.Runs); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	breakdowns := []struct {
		query string
		into  map[string]int64
	}{
		{`SELECT severity, COUNT(*) FROM annotations GROUP BY severity`, stats.BySeverity},
		{`SELECT COALESCE(ruleset_name, ''), COUNT(*) FROM annotations GROUP BY ruleset_name`, stats.ByRuleset},
		{`SELECT filename, COUNT(*) AS cnt FROM annotations GROUP BY filename ORDER BY cnt DESC LIMIT 10`, stats.ByFile},
	}
	for _, b := range breakdowns {
		if err := s.countBy(ctx, b.query, b.into); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (s *Store) countBy(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scanning breakdown: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Prune deletes annotations recorded before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
