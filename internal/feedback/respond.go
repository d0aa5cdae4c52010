package feedback

import (
	"fmt"
	"strings"
	"time"
)

// NotificationIntent is the payload handed to the mail dispatcher when a
// response can be delivered privately to the submitter.
type NotificationIntent struct {
	To      string
	Subject string
	Body    string
}

// EffectiveVisibility resolves the requested visibility. Anonymous items have
// no private channel and are always answered in public.
func EffectiveVisibility(item Item, requestedPublic bool) bool {
	if item.IsAnonymous {
		return true
	}
	return requestedPublic
}

// Respond records an admin response on the item and, when the submitter left
// a contact address, builds the notification intent for it. A second call
// overwrites the previous response.
func Respond(item Item, text string, requestedPublic bool, now time.Time) (Item, *NotificationIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return item, nil, FieldErrors{"responseText": "Response text is required."}
	}

	visible := EffectiveVisibility(item, requestedPublic)
	respondedAt := now
	item.ResponseText = &text
	item.ResponseVisiblePublic = &visible
	item.RespondedAt = &respondedAt

	to := item.ContactEmail()
	if to == "" {
		return item, nil, nil
	}
	return item, buildIntent(item, to, text), nil
}

func buildIntent(item Item, to, response string) *NotificationIntent {
	body := fmt.Sprintf("Thank you for sending your feedback.\n\nTitle:\n%s\n\nDescription:\n%s\n\nOur response:\n%s",
		item.Title,
		item.Description,
		response,
	)
	return &NotificationIntent{
		To:      to,
		Subject: "Response to your feedback: " + item.Title,
		Body:    body,
	}
}
