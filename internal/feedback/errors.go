package feedback

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrInvariant  = errors.New("feedback invariant violated")
)

// FieldErrors maps an input field to a user-facing message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+f[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
