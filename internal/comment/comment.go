// Package comment keeps per-view comment lists for feedback items and derives
// comment counts for the list view.
package comment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyContent = errors.New("comment content is required")
	ErrNoUser       = errors.New("comment requires a signed-in user")
)

type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"feedbackId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the append-only comment table. ListComments returns rows ordered
// by created_at ascending; InsertComment returns the stored row.
type Store interface {
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	ListComments(ctx context.Context, itemID string) ([]Comment, error)
}

// Cache holds the comment lists and counts of one view. Lists are fetched on
// first Open and reused afterwards.
type Cache struct {
	store  Store
	userID string
	group  singleflight.Group

	mu     sync.Mutex
	lists  map[string][]Comment
	counts map[string]int
	// added holds comments stored before the item's list was loaded.
	added map[string][]Comment
}

func NewCache(store Store, userID string, counts map[string]int) *Cache {
	copied := make(map[string]int, len(counts))
	for id, n := range counts {
		copied[id] = n
	}
	return &Cache{
		store:  store,
		userID: userID,
		lists:  make(map[string][]Comment),
		counts: copied,
		added:  make(map[string][]Comment),
	}
}

func (c *Cache) Loaded(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lists[itemID]
	return ok
}

// Open returns the item's comments, loading them on first request. The load
// is shared by concurrent callers and does not end when one of them cancels.
func (c *Cache) Open(ctx context.Context, itemID string) ([]Comment, error) {
	c.mu.Lock()
	if list, ok := c.lists[itemID]; ok {
		out := append([]Comment(nil), list...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	loaded, err, _ := c.group.Do(itemID, func() (any, error) {
		c.mu.Lock()
		if list, ok := c.lists[itemID]; ok {
			c.mu.Unlock()
			return list, nil
		}
		c.mu.Unlock()

		list, err := c.store.ListComments(context.WithoutCancel(ctx), itemID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		if list == nil {
			list = []Comment{}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, stored := range c.added[itemID] {
			if !containsComment(list, stored.ID) {
				list = append(list, stored)
			}
		}
		delete(c.added, itemID)
		c.lists[itemID] = list
		// Inserts still in flight are already counted.
		if len(list) > c.counts[itemID] {
			c.counts[itemID] = len(list)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Comment(nil), loaded.([]Comment)...), nil
}

// Add appends a comment. The count is bumped before the insert is confirmed
// and put back if the insert fails.
func (c *Cache) Add(ctx context.Context, itemID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, ErrEmptyContent
	}
	if c.userID == "" {
		return Comment{}, ErrNoUser
	}

	c.mu.Lock()
	c.counts[itemID]++
	c.mu.Unlock()

	stored, err := c.store.InsertComment(ctx, Comment{ItemID: itemID, AuthorID: c.userID, Content: content})
	if err != nil {
		c.mu.Lock()
		c.counts[itemID]--
		c.mu.Unlock()
		log.Printf("comment: insert on item %s failed: %v", itemID, err)
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	c.mu.Lock()
	if list, ok := c.lists[itemID]; ok {
		if !containsComment(list, stored.ID) {
			c.lists[itemID] = append(list, stored)
		}
	} else {
		c.added[itemID] = append(c.added[itemID], stored)
	}
	c.mu.Unlock()
	return stored, nil
}

func containsComment(list []Comment, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (c *Cache) Count(itemID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[itemID]
}

// TrackCounts records counts for items the cache has not seen yet.
func (c *Cache) TrackCounts(counts map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, n := range counts {
		if _, ok := c.counts[id]; !ok {
			c.counts[id] = n
		}
	}
}

func (c *Cache) HasCount(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.counts[itemID]
	return ok
}

func (c *Cache) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for id, n := range c.counts {
		out[id] = n
	}
	return out
}
