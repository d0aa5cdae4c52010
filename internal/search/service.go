package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to PostgreSQL.
type Service struct {
	meili *Meili
	pg    Searcher
}

// NewService wires the backends. meili may be nil when not configured.
func NewService(meili *Meili, pg Searcher) *Service {
	return &Service{meili: meili, pg: pg}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

// Index upserts one item in the background.
func (s *Service) Index(record FeedbackRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.Index([]FeedbackRecord{record}); err != nil {
			log.Printf("search: index feedback %s: %v", record.ID, err)
		}
	}()
}

// Reindex pushes every record loaded by load into Meilisearch. Called at
// start-up; a no-op without a healthy Meilisearch.
func (s *Service) Reindex(ctx context.Context, load func(context.Context) ([]FeedbackRecord, error)) {
	if !s.meiliReady() {
		return
	}
	records, err := load(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.Index(records); err != nil {
		log.Printf("search: reindex: %v", err)
		return
	}
	log.Printf("search: reindexed %d feedback items", len(records))
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
