// Package search provides ranked full-text search over feedback for the
// admin dashboard, backed by Meilisearch with a PostgreSQL fallback.
package search

import (
	"context"
	"strings"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
)

// Result is a single search hit.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Author   string `json:"author"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Query describes a search request. Empty facets match everything.
type Query struct {
	Text     string
	Status   string
	Category string
	Priority string
	Limit    int
	Offset   int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// FeedbackRecord is the indexed form of an item. Author is already resolved
// for anonymity so the index never holds a hidden name.
type FeedbackRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Status      string `json:"status"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	CreatedAt   int64  `json:"createdAt"`
}

func RecordFor(item feedback.Item) FeedbackRecord {
	return FeedbackRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Author:      feedback.AuthorName(item),
		Status:      string(item.Status),
		Category:    string(item.Category),
		Priority:    string(item.Priority),
		CreatedAt:   item.CreatedAt.Unix(),
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
