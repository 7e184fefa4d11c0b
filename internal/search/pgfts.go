package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the business_ideas fts column, scoped to
// the caller's own ideas, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*) FROM business_ideas
		WHERE user_id = $1 AND fts @@ plainto_tsquery('english', $2)
	`, q.UserID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT business_idea_id, idea_name,
			ts_headline('english', coalesce(problem_statement, ''), plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet,
			idea_progress
		FROM business_ideas
		WHERE user_id = $1 AND fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC
		LIMIT %d OFFSET %d`, limit, offset), q.UserID, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.IdeaName, &r.Snippet, &r.Progress); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every business idea for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IdeaRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT business_idea_id, user_id, idea_name, idea_foundation, problem_statement, unique_solution, target_location, idea_progress
		FROM business_ideas
	`)
	if err != nil {
		return nil, fmt.Errorf("load ideas: %w", err)
	}
	defer rows.Close()

	records := make([]IdeaRecord, 0)
	for rows.Next() {
		var rec IdeaRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.IdeaName, &rec.IdeaFoundation, &rec.ProblemStatement, &rec.UniqueSolution, &rec.TargetLocation, &rec.Progress); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return records, nil
}
