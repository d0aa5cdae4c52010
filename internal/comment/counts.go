package comment

import (
	"context"
	"fmt"
	"log"
)

// CountStore exposes the two ways of counting comments for a batch of items.
type CountStore interface {
	// CommentCounts runs the server-side group-and-count.
	CommentCounts(ctx context.Context, itemIDs []string) (map[string]int, error)
	// CommentItemIDs returns one item id per comment row.
	CommentItemIDs(ctx context.Context, itemIDs []string) ([]string, error)
}

type Source string

const (
	SourceAggregate Source = "aggregate"
	SourceFallback  Source = "fallback"
	SourceNone      Source = "none"
)

// Counts returns the comment count of every id, preferring the batched
// aggregate and falling back to grouping raw rows when it fails. Every id is
// present in the result, with 0 when it has no comments. If both paths fail
// every id maps to 0 and the fallback error is returned.
func Counts(ctx context.Context, store CountStore, itemIDs []string) (map[string]int, Source, error) {
	if len(itemIDs) == 0 {
		return map[string]int{}, SourceNone, nil
	}

	aggregate, err := store.CommentCounts(ctx, itemIDs)
	if err == nil {
		return normalize(itemIDs, aggregate), SourceAggregate, nil
	}
	log.Printf("comment: aggregate count unavailable, falling back: %v", err)

	rows, err := store.CommentItemIDs(ctx, itemIDs)
	if err != nil {
		return zeroed(itemIDs), SourceNone, fmt.Errorf("count comments: %w", err)
	}
	return GroupCounts(itemIDs, rows), SourceFallback, nil
}

// GroupCounts counts raw rows per item id.
func GroupCounts(itemIDs []string, rows []string) map[string]int {
	counts := zeroed(itemIDs)
	for _, id := range rows {
		counts[id]++
	}
	return counts
}

func normalize(itemIDs []string, counts map[string]int) map[string]int {
	out := zeroed(itemIDs)
	for id, n := range counts {
		out[id] = n
	}
	return out
}

func zeroed(itemIDs []string) map[string]int {
	out := make(map[string]int, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = 0
	}
	return out
}
