package feedback

import (
	"strings"
	"time"
)

// PublicItem is what the public feed shows for a published item.
type PublicItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Priority    Priority   `json:"priority"`
	Author      string     `json:"author"`
	CreatedAt   time.Time  `json:"createdAt"`
	Response    string     `json:"response,omitempty"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// DashboardItem is the admin view of an item; it carries private fields.
type DashboardItem struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Category              Category   `json:"category"`
	Priority              Priority   `json:"priority"`
	Status                Status     `json:"status"`
	IsAnonymous           bool       `json:"isAnonymous"`
	Author                string     `json:"author"`
	ContactEmail          string     `json:"contactEmail,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	ResponseText          *string    `json:"responseText"`
	ResponseVisiblePublic *bool      `json:"responseVisiblePublic"`
	RespondedAt           *time.Time `json:"respondedAt"`
	CategoryBadge         string     `json:"categoryBadge"`
	PriorityBadge         string     `json:"priorityBadge"`
}

// AuthorName is the display name shown next to an item.
func AuthorName(item Item) string {
	if item.IsAnonymous {
		return "Anonymous"
	}
	if item.Submitter != nil && strings.TrimSpace(item.Submitter.DisplayName) != "" {
		return item.Submitter.DisplayName
	}
	return "Unknown"
}

func Public(item Item) PublicItem {
	view := PublicItem{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Priority:    item.Priority,
		Author:      AuthorName(item),
		CreatedAt:   item.CreatedAt,
	}
	if item.ResponseText != nil && item.ResponseVisiblePublic != nil && *item.ResponseVisiblePublic {
		view.Response = *item.ResponseText
		view.RespondedAt = item.RespondedAt
	}
	return view
}

func Dashboard(item Item) DashboardItem {
	return DashboardItem{
		ID:                    item.ID,
		Title:                 item.Title,
		Description:           item.Description,
		Category:              item.Category,
		Priority:              item.Priority,
		Status:                item.Status,
		IsAnonymous:           item.IsAnonymous,
		Author:                AuthorName(item),
		ContactEmail:          item.ContactEmail(),
		CreatedAt:             item.CreatedAt,
		ResponseText:          item.ResponseText,
		ResponseVisiblePublic: item.ResponseVisiblePublic,
		RespondedAt:           item.RespondedAt,
		CategoryBadge:         CategoryBadgeClass(item.Category),
		PriorityBadge:         PriorityBadgeClass(item.Priority),
	}
}

// Filter narrows the admin dashboard list. Zero values match everything.
type Filter struct {
	Status   Status
	Category Category
	Priority Priority
	Query    string
}

// searchAuthor is the text the dashboard search matches against.
func searchAuthor(item Item) string {
	if item.IsAnonymous {
		return "anonymous"
	}
	if item.Submitter == nil {
		return ""
	}
	if item.Submitter.DisplayName != "" {
		return item.Submitter.DisplayName
	}
	return item.Submitter.Email
}

// MatchesFacets checks status, category and priority only.
func (f Filter) MatchesFacets(item Item) bool {
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.Priority != "" && item.Priority != f.Priority {
		return false
	}
	return true
}

func (f Filter) Matches(item Item) bool {
	if !f.MatchesFacets(item) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(item.Title), q) ||
		strings.Contains(strings.ToLower(item.Description), q) ||
		strings.Contains(strings.ToLower(searchAuthor(item)), q)
}

func Apply(items []Item, f Filter) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if f.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}
