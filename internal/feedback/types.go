// Package feedback holds the feedback item model, its closed enumerations,
// the moderation status workflow and the response/notification policy.
package feedback

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryAcademics      Category = "academics"
	CategoryFacilities     Category = "facilities"
	CategoryInfirmary      Category = "infirmary"
	CategoryCafeteria      Category = "cafeteria"
	CategoryLibrary        Category = "library"
	CategoryDormitory      Category = "dormitory"
	CategoryEvents         Category = "events"
	CategoryTransportation Category = "transportation"
	CategoryTechnology     Category = "technology"
	CategoryAdministration Category = "administration"
	CategorySafety         Category = "safety"
	CategoryOther          Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAcademics,
	CategoryFacilities,
	CategoryInfirmary,
	CategoryCafeteria,
	CategoryLibrary,
	CategoryDormitory,
	CategoryEvents,
	CategoryTransportation,
	CategoryTechnology,
	CategoryAdministration,
	CategorySafety,
	CategoryOther,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAcademics, CategoryFacilities, CategoryInfirmary, CategoryCafeteria,
		CategoryLibrary, CategoryDormitory, CategoryEvents, CategoryTransportation,
		CategoryTechnology, CategoryAdministration, CategorySafety, CategoryOther:
		return true
	default:
		return false
	}
}

// Label capitalises the first letter, e.g. "facilities" -> "Facilities".
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists priorities in ranking order, most urgent first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank is 0 for critical through 3 for low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return len(Priorities)
	}
}

func (p Priority) Label() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPublished  Status = "published"
	StatusRejected   Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusPublished, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPublished, StatusRejected:
		return true
	default:
		return false
	}
}

func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusPublished:
		return "Published"
	case StatusRejected:
		return "Rejected"
	default:
		return ""
	}
}

func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, value)
	}
	return c, nil
}

func ParsePriority(value string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(value)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, value)
	}
	return p, nil
}

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, value)
	}
	return s, nil
}

// Submitter is the joined profile of a non-anonymous submitter.
type Submitter struct {
	DisplayName string
	Email       string
}

// Item is the canonical feedback record. Views for the public feed and the
// admin dashboard are projections of it (see projection.go).
type Item struct {
	ID                    string
	UserID                string
	Title                 string
	Description           string
	Category              Category
	Priority              Priority
	Status                Status
	IsAnonymous           bool
	CreatedAt             time.Time
	Submitter             *Submitter
	ResponseText          *string
	ResponseVisiblePublic *bool
	RespondedAt           *time.Time
}

// ContactEmail is the address a private response can be delivered to.
// Anonymous items never have one.
func (i Item) ContactEmail() string {
	if i.IsAnonymous || i.Submitter == nil {
		return ""
	}
	return strings.TrimSpace(i.Submitter.Email)
}

func (i Item) HasResponse() bool {
	return i.ResponseText != nil
}

// CheckInvariants reports the first broken record invariant, if any.
func (i Item) CheckInvariants() error {
	if !i.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvariant, i.Status)
	}
	if !i.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvariant, i.Category)
	}
	if !i.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvariant, i.Priority)
	}
	if (i.ResponseText == nil) != (i.RespondedAt == nil) {
		return fmt.Errorf("%w: responded_at must be set exactly when response_text is", ErrInvariant)
	}
	if i.IsAnonymous && i.HasResponse() && (i.ResponseVisiblePublic == nil || !*i.ResponseVisiblePublic) {
		return fmt.Errorf("%w: anonymous responses must be public", ErrInvariant)
	}
	return nil
}
