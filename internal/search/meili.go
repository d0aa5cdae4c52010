package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxFeedback = "portal_feedback"

type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates the client and configures the index when reachable. A
// background loop keeps the health flag current.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxFeedback, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxFeedback, err)
	}
	index := m.client.Index(idxFeedback)

	filterable := []interface{}{"status", "category", "priority"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"title", "description", "author"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Swap(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// facetFilter builds the Meilisearch filter expressions for q.
func facetFilter(q Query) []string {
	var filters []string
	add := func(field, value string) {
		if value != "" {
			filters = append(filters, fmt.Sprintf("%s = %q", field, value))
		}
	}
	add("status", q.Status)
	add("category", q.Category)
	add("priority", q.Priority)
	return filters
}

func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	req := &meili.SearchRequest{
		IndexUID:              idxFeedback,
		Query:                 q.Text,
		Limit:                 int64(q.limit()),
		Offset:                int64(q.offset()),
		AttributesToHighlight: []string{"title", "description"},
		AttributesToCrop:      []string{"description"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := facetFilter(q); len(filters) > 0 {
		req.Filter = filters
	}
	if strings.TrimSpace(q.Text) == "" {
		req.Sort = []string{"createdAt:desc"}
	}

	resp, err := m.client.MultiSearchWithContext(ctx, &meili.MultiSearchRequest{Queries: []*meili.SearchRequest{req}})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:       decodeString(hit, "id"),
		Title:    firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:  firstNonBlank(decodeFormattedString(hit, "description"), snippet(decodeString(hit, "description"), 160)),
		Author:   decodeString(hit, "author"),
		Status:   decodeString(hit, "status"),
		Category: decodeString(hit, "category"),
		Priority: decodeString(hit, "priority"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Index adds or replaces records by id.
func (m *Meili) Index(records []FeedbackRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxFeedback).AddDocuments(records, nil)
	return err
}
