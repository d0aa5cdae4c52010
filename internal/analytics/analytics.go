// Package analytics derives the admin dashboard statistics from the current
// feedback collection. Everything here is a pure function of its inputs.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
)

const (
	trendMonths = 6
	recentLimit = 5
)

type StatusBreakdown struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Published  int `json:"published"`
	Rejected   int `json:"rejected"`
}

type CategoryShare struct {
	Category feedback.Category `json:"category"`
	Label    string            `json:"label"`
	Count    int               `json:"count"`
	Percent  int               `json:"percent"`
	Color    string            `json:"color"`
}

type PriorityBar struct {
	Priority feedback.Priority `json:"priority"`
	Label    string            `json:"label"`
	Count    int               `json:"count"`
	// Width is the bar length in percent of the largest priority count.
	Width float64 `json:"width"`
	Color string  `json:"color"`
}

type MonthBucket struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Snapshot struct {
	Total         int             `json:"total"`
	Status        StatusBreakdown `json:"status"`
	Responded     int             `json:"responded"`
	Anonymous     int             `json:"anonymous"`
	ResponseRate  int             `json:"responseRate"`
	AnonymousRate int             `json:"anonymousRate"`
	Categories    []CategoryShare `json:"categories"`
	Priorities    []PriorityBar   `json:"priorities"`
	Trend         []MonthBucket   `json:"trend"`
	MaxTrend      int             `json:"maxTrend"`
	// Recent feeds the report templates; RecentItems is its dashboard projection.
	Recent      []feedback.Item          `json:"-"`
	RecentItems []feedback.DashboardItem `json:"recent"`
}

// CountStatuses counts items per status in one pass.
func CountStatuses(items []feedback.Item) StatusBreakdown {
	var out StatusBreakdown
	for _, item := range items {
		out.add(item.Status)
	}
	return out
}

func (s *StatusBreakdown) add(status feedback.Status) {
	switch status {
	case feedback.StatusPending:
		s.Pending++
	case feedback.StatusInProgress:
		s.InProgress++
	case feedback.StatusPublished:
		s.Published++
	case feedback.StatusRejected:
		s.Rejected++
	}
}

// Compute builds the snapshot for items as of now. The trend window is the
// six calendar months ending with now's month, in now's location.
func Compute(items []feedback.Item, now time.Time) Snapshot {
	snap := Snapshot{Total: len(items)}

	categoryCounts := make(map[feedback.Category]int)
	priorityCounts := make(map[feedback.Priority]int)

	for _, item := range items {
		snap.Status.add(item.Status)
		if item.HasResponse() {
			snap.Responded++
		}
		if item.IsAnonymous {
			snap.Anonymous++
		}
		categoryCounts[item.Category]++
		priorityCounts[item.Priority]++
	}

	snap.ResponseRate = percent(snap.Responded, snap.Total)
	snap.AnonymousRate = percent(snap.Anonymous, snap.Total)
	snap.Categories = categoryShares(categoryCounts, snap.Total)
	snap.Priorities = priorityBars(priorityCounts)
	snap.Trend = monthlyTrend(items, now)
	for _, bucket := range snap.Trend {
		if bucket.Count > snap.MaxTrend {
			snap.MaxTrend = bucket.Count
		}
	}
	snap.Recent = Recent(items, recentLimit)
	snap.RecentItems = make([]feedback.DashboardItem, 0, len(snap.Recent))
	for _, item := range snap.Recent {
		snap.RecentItems = append(snap.RecentItems, feedback.Dashboard(item))
	}
	return snap
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func categoryShares(counts map[feedback.Category]int, total int) []CategoryShare {
	shares := make([]CategoryShare, 0, len(counts))
	for _, category := range feedback.Categories {
		n := counts[category]
		if n == 0 {
			continue
		}
		shares = append(shares, CategoryShare{
			Category: category,
			Label:    category.Label(),
			Count:    n,
			Percent:  percent(n, total),
			Color:    feedback.CategoryHex(category),
		})
	}
	return shares
}

func priorityBars(counts map[feedback.Priority]int) []PriorityBar {
	max := 0
	for _, priority := range feedback.Priorities {
		if counts[priority] > max {
			max = counts[priority]
		}
	}
	bars := make([]PriorityBar, 0, len(feedback.Priorities))
	for _, priority := range feedback.Priorities {
		n := counts[priority]
		width := 0.0
		if max > 0 {
			width = float64(n) / float64(max) * 100
		}
		bars = append(bars, PriorityBar{
			Priority: priority,
			Label:    priority.Label(),
			Count:    n,
			Width:    width,
			Color:    feedback.PriorityHex(priority),
		})
	}
	return bars
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func monthlyTrend(items []feedback.Item, now time.Time) []MonthBucket {
	loc := now.Location()
	buckets := make([]MonthBucket, 0, trendMonths)
	index := make(map[string]int, trendMonths)
	for i := trendMonths - 1; i >= 0; i-- {
		start := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, loc)
		key := monthKey(start)
		index[key] = len(buckets)
		buckets = append(buckets, MonthBucket{Key: key, Label: start.Format("Jan 06")})
	}
	for _, item := range items {
		if pos, ok := index[monthKey(item.CreatedAt.In(loc))]; ok {
			buckets[pos].Count++
		}
	}
	return buckets
}

// Recent returns up to limit items, newest first. Items with equal timestamps
// keep their collection order.
func Recent(items []feedback.Item, limit int) []feedback.Item {
	sorted := append([]feedback.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
