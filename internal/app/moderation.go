package app

import (
	"context"
	"log"
	"strings"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/analytics"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/export"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/search"
)

type Dashboard struct {
	Items  []feedback.DashboardItem  `json:"items"`
	Counts analytics.StatusBreakdown `json:"counts"`
	Total  int                       `json:"total"`
}

// Dashboard lists every item newest first. Status counts cover the whole
// set; the filter only narrows Items.
func (s *Service) Dashboard(ctx context.Context, filter feedback.Filter) (Dashboard, error) {
	items, err := s.store.ListFeedback(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	filtered := feedback.Apply(items, filter)
	out := make([]feedback.DashboardItem, 0, len(filtered))
	for _, item := range filtered {
		out = append(out, feedback.Dashboard(item))
	}
	return Dashboard{Items: out, Counts: analytics.CountStatuses(items), Total: len(items)}, nil
}

func (s *Service) TransitionStatus(ctx context.Context, itemID, statusValue string) (feedback.DashboardItem, error) {
	status, err := feedback.ParseStatus(strings.TrimSpace(statusValue))
	if err != nil {
		return feedback.DashboardItem{}, feedback.FieldErrors{"status": "Status must be one of pending, in_progress, published, rejected."}
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return feedback.DashboardItem{}, err
	}
	item, err = feedback.Transition(item, status)
	if err != nil {
		return feedback.DashboardItem{}, err
	}
	if err := s.store.UpdateFeedbackStatus(ctx, item.ID, item.Status); err != nil {
		return feedback.DashboardItem{}, err
	}
	s.index(item)
	return feedback.Dashboard(item), nil
}

type RespondInput struct {
	ResponseText  string `json:"responseText"`
	VisiblePublic bool   `json:"responseVisiblePublic"`
}

type RespondResult struct {
	Item feedback.DashboardItem `json:"item"`
	// Notified is true when a notification email was handed to SMTP.
	Notified bool `json:"notified"`
}

// Respond stores an admin response and mails it to the submitter when the
// item has a contact address. Delivery failures are logged only.
func (s *Service) Respond(ctx context.Context, itemID string, input RespondInput) (RespondResult, error) {
	if strings.TrimSpace(input.ResponseText) == "" {
		return RespondResult{}, feedback.FieldErrors{"responseText": "Response text is required."}
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return RespondResult{}, err
	}
	item, intent, err := feedback.Respond(item, input.ResponseText, input.VisiblePublic, s.now())
	if err != nil {
		return RespondResult{}, err
	}
	if err := s.store.SaveResponse(ctx, item); err != nil {
		return RespondResult{}, err
	}
	s.index(item)
	return RespondResult{Item: feedback.Dashboard(item), Notified: s.dispatch(item.ID, intent)}, nil
}

func (s *Service) dispatch(itemID string, intent *feedback.NotificationIntent) bool {
	if intent == nil {
		return false
	}
	if !s.MailConfigured() {
		log.Printf("notify: smtp not configured, response to %s not mailed", itemID)
		s.metrics.Notification("skipped")
		return false
	}
	if err := s.mail.SendNotification(*intent); err != nil {
		log.Printf("notify: response mail for %s failed: %v", itemID, err)
		s.metrics.Notification("failed")
		return false
	}
	s.metrics.Notification("sent")
	return true
}

func (s *Service) Analytics(ctx context.Context) (analytics.Snapshot, error) {
	items, err := s.store.ListFeedback(ctx)
	if err != nil {
		return analytics.Snapshot{}, err
	}
	return analytics.Compute(items, s.now()), nil
}

func (s *Service) ExportAnalytics(ctx context.Context, formatValue string) (*export.Result, error) {
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(formatValue)))
	if err != nil {
		return nil, err
	}
	if s.reports == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Report export is not configured", nil)
	}
	snapshot, err := s.Analytics(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.reports.Report(ctx, snapshot, format, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.Exported(string(format))
	return result, nil
}

// Search runs a ranked search over all feedback for the dashboard.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}
	}
	resp := s.search.Search(ctx, q)
	s.metrics.Searched(resp.Backend)
	return resp
}
