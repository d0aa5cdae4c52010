package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch answers queries from the feedback table with PostgreSQL full-text
// search, ranked by ts_rank.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy is always true; without Postgres nothing else works either.
func (p *PgSearch) Healthy() bool {
	return true
}

const authorExpr = `CASE WHEN f.is_anonymous THEN 'Anonymous' ELSE COALESCE(NULLIF(p.display_name, ''), 'Unknown') END`

// documentExpr is the searchable text of an item. The author is resolved for
// anonymity first so a hidden name never matches.
const documentExpr = `to_tsvector('english', f.title || ' ' || f.description || ' ' || ` + authorExpr + `)`

// pgQuery is a query compiled to SQL fragments.
type pgQuery struct {
	where   string
	args    []any
	rank    string
	snippet string
}

func compile(q Query) pgQuery {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	out := pgQuery{rank: "0", snippet: "f.description"}
	if text := strings.TrimSpace(q.Text); text != "" {
		tsQuery := "plainto_tsquery('english', " + arg(text) + ")"
		conds = append(conds, documentExpr+" @@ "+tsQuery)
		out.rank = fmt.Sprintf("ts_rank(%s, %s)", documentExpr, tsQuery)
		out.snippet = fmt.Sprintf("ts_headline('english', f.description, %s, 'MaxFragments=1,MaxWords=30')", tsQuery)
	}
	if q.Status != "" {
		conds = append(conds, "f.status = "+arg(q.Status))
	}
	if q.Category != "" {
		conds = append(conds, "f.category = "+arg(q.Category))
	}
	if q.Priority != "" {
		conds = append(conds, "f.priority = "+arg(q.Priority))
	}
	out.where = "TRUE"
	if len(conds) > 0 {
		out.where = strings.Join(conds, " AND ")
	}
	out.args = args
	return out
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	compiled := compile(q)
	from := `FROM feedback f LEFT JOIN profiles p ON p.id = f.user_id WHERE ` + compiled.where

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+from, compiled.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.id, f.title, %s, %s, f.status, f.category, f.priority
		%s
		ORDER BY %s DESC, f.created_at DESC
		LIMIT %d OFFSET %d`, compiled.snippet, authorExpr, from, compiled.rank, q.limit(), q.offset()), compiled.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	ranked := compiled.rank != "0"
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Author, &r.Status, &r.Category, &r.Priority); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		if !ranked {
			r.Snippet = snippet(r.Snippet, 160)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
