package feedback

import "fmt"

// Transition moves an item to the target status. Any of the four statuses is
// a legal target; response fields are left untouched. Concurrent transitions
// on the same item resolve last-write-wins in the store.
func Transition(item Item, to Status) (Item, error) {
	if !to.Valid() {
		return item, FieldErrors{"status": fmt.Sprintf("unknown status %q", to)}
	}
	item.Status = to
	return item, nil
}

// IsPublic reports whether an item appears in the public feed.
func IsPublic(item Item) bool {
	return item.Status == StatusPublished
}
