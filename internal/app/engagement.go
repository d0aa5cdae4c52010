package app

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/comment"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/reaction"
)

// view is the engagement state of one signed-in session: the reaction board
// and comment cache the feed was opened with.
type view struct {
	board     *reaction.Board
	comments  *comment.Cache
	expiresAt time.Time
}

// openView replaces the session's view with one seeded from a fresh load.
func (s *Service) openView(sessionKey, userID string, states map[string]reaction.State, counts map[string]int) *view {
	v := &view{
		board:     reaction.NewBoard(s.store, userID, states),
		comments:  comment.NewCache(s.store, userID, counts),
		expiresAt: s.now().Add(s.viewTTL),
	}
	s.viewMu.Lock()
	s.sweepViewsLocked()
	s.views[sessionKey] = v
	active := len(s.views)
	s.viewMu.Unlock()
	s.metrics.SetActiveViews(active)
	return v
}

// viewFor returns the session's view, creating an empty one when the feed
// was never opened or the view expired.
func (s *Service) viewFor(current Session) *view {
	now := s.now()
	s.viewMu.Lock()
	v, ok := s.views[current.JTI]
	if ok && now.Before(v.expiresAt) {
		v.expiresAt = now.Add(s.viewTTL)
		s.viewMu.Unlock()
		return v
	}
	s.viewMu.Unlock()
	return s.openView(current.JTI, current.UserID, nil, nil)
}

func (s *Service) dropView(sessionKey string) {
	s.viewMu.Lock()
	delete(s.views, sessionKey)
	active := len(s.views)
	s.viewMu.Unlock()
	s.metrics.SetActiveViews(active)
}

func (s *Service) sweepViewsLocked() {
	now := s.now()
	for key, v := range s.views {
		if !now.Before(v.expiresAt) {
			delete(s.views, key)
		}
	}
}

type FeedEntry struct {
	feedback.PublicItem
	Reactions    reaction.State `json:"reactions"`
	CommentCount int            `json:"commentCount"`
}

// PublicFeed lists published items newest first with the caller's reaction
// state and comment counts. Reactions and counts load in parallel; a failure
// in either is logged and the feed renders with zeroed values.
func (s *Service) PublicFeed(ctx context.Context, current Session) ([]FeedEntry, error) {
	items, err := s.store.ListPublishedFeedback(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	var (
		states map[string]reaction.State
		counts map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loaded, err := reaction.Load(gctx, s.store, ids, current.UserID)
		if err != nil {
			log.Printf("reaction: %v", err)
		}
		states = loaded
		return nil
	})
	g.Go(func() error {
		loaded, source, err := comment.Counts(gctx, s.store, ids)
		if err != nil {
			log.Printf("comment: %v", err)
		}
		s.metrics.CommentCountsLoaded(string(source))
		counts = loaded
		return nil
	})
	_ = g.Wait()

	v := s.openView(current.JTI, current.UserID, states, counts)

	entries := make([]FeedEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, FeedEntry{
			PublicItem:   feedback.Public(item),
			Reactions:    v.board.State(item.ID),
			CommentCount: v.comments.Count(item.ID),
		})
	}
	return entries, nil
}

type ReactionResult struct {
	ItemID    string         `json:"feedbackId"`
	Reactions reaction.State `json:"reactions"`
	Saved     bool           `json:"saved"`
}

// ToggleReaction applies a like or dislike click for the caller. A failed
// write keeps the optimistic state, marks it stale and reports Saved=false.
func (s *Service) ToggleReaction(ctx context.Context, current Session, itemID, kindValue string) (ReactionResult, error) {
	kind, err := reaction.ParseKind(kindValue)
	if err != nil {
		return ReactionResult{}, err
	}
	if _, err := s.loadPublished(ctx, itemID); err != nil {
		return ReactionResult{}, err
	}

	v := s.viewFor(current)
	if !v.board.Has(itemID) {
		states, err := reaction.Load(ctx, s.store, []string{itemID}, current.UserID)
		if err != nil {
			return ReactionResult{}, err
		}
		v.board.Track(states)
	}

	state, intent, err := v.board.Toggle(ctx, itemID, kind)
	if err != nil {
		log.Printf("reaction: %s %s on item %s failed: %v", intent.Op, kind, itemID, err)
		s.metrics.ReactionToggled(string(kind), "failed")
		return ReactionResult{ItemID: itemID, Reactions: state, Saved: false}, nil
	}
	s.metrics.ReactionToggled(string(kind), toggleResult(intent))
	return ReactionResult{ItemID: itemID, Reactions: state, Saved: true}, nil
}

func toggleResult(intent reaction.Intent) string {
	switch {
	case intent.Op == reaction.OpDelete:
		return "removed"
	case intent.Previous != nil:
		return "switched"
	default:
		return "added"
	}
}

type CommentThread struct {
	ItemID   string            `json:"feedbackId"`
	Comments []comment.Comment `json:"comments"`
	Count    int               `json:"count"`
}

// Comments opens the item's comment list, loading it on first request for
// the session's view.
func (s *Service) Comments(ctx context.Context, current Session, itemID string) (CommentThread, error) {
	if _, err := s.loadPublished(ctx, itemID); err != nil {
		return CommentThread{}, err
	}
	v := s.viewFor(current)
	list, err := v.comments.Open(ctx, itemID)
	if err != nil {
		return CommentThread{}, err
	}
	if !v.comments.HasCount(itemID) {
		v.comments.TrackCounts(map[string]int{itemID: len(list)})
	}
	return CommentThread{ItemID: itemID, Comments: list, Count: v.comments.Count(itemID)}, nil
}

type AddedComment struct {
	Comment comment.Comment `json:"comment"`
	Count   int             `json:"count"`
}

func (s *Service) AddComment(ctx context.Context, current Session, itemID, content string) (AddedComment, error) {
	if strings.TrimSpace(content) == "" {
		return AddedComment{}, comment.ErrEmptyContent
	}
	if _, err := s.loadPublished(ctx, itemID); err != nil {
		return AddedComment{}, err
	}

	v := s.viewFor(current)
	if !v.comments.HasCount(itemID) {
		counts, _, err := comment.Counts(ctx, s.store, []string{itemID})
		if err != nil {
			log.Printf("comment: %v", err)
		}
		v.comments.TrackCounts(counts)
	}

	stored, err := v.comments.Add(ctx, itemID, content)
	if err != nil {
		return AddedComment{}, err
	}
	s.metrics.CommentCreated()
	return AddedComment{Comment: stored, Count: v.comments.Count(itemID)}, nil
}
