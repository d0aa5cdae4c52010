package reaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNoUser = errors.New("reaction requires a signed-in user")

// Store is the slice of the backing store the engine writes through.
// Both operations are keyed on (item, user) and idempotent.
type Store interface {
	UpsertReaction(ctx context.Context, r Reaction) error
	DeleteReaction(ctx context.Context, itemID, userID string) error
}

type Loader interface {
	ListReactions(ctx context.Context, itemIDs []string) ([]Reaction, error)
}

// Persist fires exactly one store write for the intent.
func Persist(ctx context.Context, store Store, intent Intent) error {
	switch intent.Op {
	case OpUpsert:
		return store.UpsertReaction(ctx, Reaction{ItemID: intent.ItemID, UserID: intent.UserID, Kind: intent.Kind})
	case OpDelete:
		return store.DeleteReaction(ctx, intent.ItemID, intent.UserID)
	default:
		return fmt.Errorf("reaction: unknown op %d", intent.Op)
	}
}

// Load fetches the reactions for itemIDs and aggregates them for userID. On
// error every id maps to an empty state so the view still renders.
func Load(ctx context.Context, loader Loader, itemIDs []string, userID string) (map[string]State, error) {
	if len(itemIDs) == 0 {
		return map[string]State{}, nil
	}
	rows, err := loader.ListReactions(ctx, itemIDs)
	if err != nil {
		return Aggregate(nil, itemIDs, userID), fmt.Errorf("load reactions: %w", err)
	}
	return Aggregate(rows, itemIDs, userID), nil
}

// Board owns the reaction states of one view for one user. Toggles on the
// same item are serialized; different items proceed independently.
type Board struct {
	store  Store
	userID string

	mu     sync.Mutex
	states map[string]State
	locks  map[string]*sync.Mutex
}

func NewBoard(store Store, userID string, states map[string]State) *Board {
	copied := make(map[string]State, len(states))
	for id, state := range states {
		copied[id] = state
	}
	return &Board{
		store:  store,
		userID: userID,
		states: copied,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (b *Board) UserID() string {
	return b.userID
}

func (b *Board) Has(itemID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.states[itemID]
	return ok
}

// Track adds states for items the board has not seen yet. Existing entries
// are kept so in-flight optimistic values are not overwritten.
func (b *Board) Track(states map[string]State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, state := range states {
		if _, ok := b.states[id]; !ok {
			b.states[id] = state
		}
	}
}

func (b *Board) State(itemID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[itemID]
}

func (b *Board) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.states))
	for id, state := range b.states {
		out[id] = state
	}
	return out
}

func (b *Board) itemLock(itemID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[itemID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[itemID] = lock
	}
	return lock
}

// Toggle applies the click locally, writes it through, and reconciles. The
// returned state is what the viewer should see; a non-nil error means the
// write failed and the state is marked stale.
func (b *Board) Toggle(ctx context.Context, itemID string, kind Kind) (State, Intent, error) {
	if b.userID == "" {
		return State{}, Intent{}, ErrNoUser
	}
	if kind != Like && kind != Dislike {
		return State{}, Intent{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	lock := b.itemLock(itemID)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	optimistic, intent := Apply(b.states[itemID], itemID, b.userID, kind)
	b.states[itemID] = optimistic
	b.mu.Unlock()

	err := Persist(ctx, b.store, intent)

	b.mu.Lock()
	reconciled := Reconcile(b.states[itemID], intent, err)
	b.states[itemID] = reconciled
	b.mu.Unlock()

	return reconciled, intent, err
}
