// Package reaction implements like/dislike toggling on feedback items: the
// pure transition and count rules, the load-time aggregation, and a per-view
// Board that applies toggles optimistically before the store confirms them.
package reaction

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

type Kind string

const (
	Like    Kind = "like"
	Dislike Kind = "dislike"
)

var ErrUnknownKind = errors.New("reaction must be 'like' or 'dislike'")

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case Like:
		return Like, nil
	case Dislike:
		return Dislike, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// Reaction is one stored row; at most one exists per (item, user).
type Reaction struct {
	ItemID string
	UserID string
	Kind   Kind
}

// State is the aggregate a viewer sees for one item.
type State struct {
	Likes        int   `json:"likes"`
	Dislikes     int   `json:"dislikes"`
	UserReaction *Kind `json:"userReaction"`
	// Stale is set when the last write for this item failed and the counts
	// may differ from the store until the next full load.
	Stale bool `json:"stale,omitempty"`
}

type Op int

const (
	OpUpsert Op = iota + 1
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Intent is the single store write a toggle requires.
type Intent struct {
	ItemID   string
	UserID   string
	Op       Op
	Kind     Kind
	Previous *Kind
}

// Next returns the reaction after the user clicks kind: clicking the current
// reaction clears it, anything else replaces it.
func Next(current *Kind, kind Kind) *Kind {
	if current != nil && *current == kind {
		return nil
	}
	next := kind
	return &next
}

// Apply is the local optimistic step. Both counters are adjusted in one
// step: the previous reaction's counter goes down, the new one's goes up.
func Apply(state State, itemID, userID string, kind Kind) (State, Intent) {
	previous := state.UserReaction
	next := Next(previous, kind)

	out := state
	adjust(&out, previous, -1)
	adjust(&out, next, +1)
	out.UserReaction = next

	intent := Intent{ItemID: itemID, UserID: userID, Previous: copyKind(previous)}
	if next == nil {
		intent.Op = OpDelete
	} else {
		intent.Op = OpUpsert
		intent.Kind = *next
	}
	return out, intent
}

func adjust(state *State, kind *Kind, delta int) {
	if kind == nil {
		return
	}
	switch *kind {
	case Like:
		state.Likes += delta
	case Dislike:
		state.Dislikes += delta
	}
}

// Reconcile folds the outcome of a store write back into the optimistic
// state. Failures are logged and the optimistic counts are kept; the item is
// marked stale until the next full load.
func Reconcile(state State, intent Intent, err error) State {
	if err == nil {
		state.Stale = false
		return state
	}
	log.Printf("reaction: %s for item %s user %s failed: %v", intent.Op, intent.ItemID, intent.UserID, err)
	state.Stale = true
	return state
}

// Aggregate builds the per-item state for userID from the full reaction set of
// a batch of items in one pass. Every requested id is present in the result.
func Aggregate(rows []Reaction, itemIDs []string, userID string) map[string]State {
	states := make(map[string]State, len(itemIDs))
	for _, id := range itemIDs {
		states[id] = State{}
	}
	for _, row := range rows {
		state := states[row.ItemID]
		switch row.Kind {
		case Like:
			state.Likes++
		case Dislike:
			state.Dislikes++
		default:
			continue
		}
		if userID != "" && row.UserID == userID {
			state.UserReaction = copyKind(&row.Kind)
		}
		states[row.ItemID] = state
	}
	return states
}

func copyKind(kind *Kind) *Kind {
	if kind == nil {
		return nil
	}
	value := *kind
	return &value
}
