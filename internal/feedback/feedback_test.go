package feedback

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func sampleItem(anonymous bool, email string) Item {
	item := Item{
		ID:          "fb-1",
		UserID:      "user-1",
		Title:       "Broken projector",
		Description: "The projector in room 204 flickers.",
		Category:    CategoryFacilities,
		Priority:    PriorityHigh,
		Status:      StatusPending,
		IsAnonymous: anonymous,
		CreatedAt:   fixedNow.Add(-48 * time.Hour),
	}
	if !anonymous {
		item.Submitter = &Submitter{DisplayName: "Jordan", Email: email}
	}
	return item
}

func TestTransition(t *testing.T) {
	response := "noted"
	visible := false
	respondedAt := fixedNow
	base := sampleItem(false, "jordan@example.edu")
	base.ResponseText = &response
	base.ResponseVisiblePublic = &visible
	base.RespondedAt = &respondedAt

	for _, target := range Statuses {
		t.Run(string(target), func(t *testing.T) {
			got, err := Transition(base, target)
			if err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if got.Status != target {
				t.Fatalf("status = %q, want %q", got.Status, target)
			}
			if got.ResponseText != base.ResponseText || got.ResponseVisiblePublic != base.ResponseVisiblePublic || got.RespondedAt != base.RespondedAt {
				t.Fatal("transition must not touch response fields")
			}
			if got.Title != base.Title || got.Category != base.Category || got.IsAnonymous != base.IsAnonymous {
				t.Fatal("transition must not touch other fields")
			}
		})
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	item := sampleItem(false, "")
	got, err := Transition(item, Status("archived"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("status changed to %q on failure", got.Status)
	}
}

func TestRespondAnonymousAlwaysPublic(t *testing.T) {
	for _, requested := range []bool{true, false} {
		item := sampleItem(true, "")
		got, intent, err := Respond(item, "Fixed next week", requested, fixedNow)
		if err != nil {
			t.Fatalf("Respond() error = %v", err)
		}
		if got.ResponseVisiblePublic == nil || !*got.ResponseVisiblePublic {
			t.Fatalf("requested=%v: anonymous response must be public", requested)
		}
		if intent != nil {
			t.Fatalf("requested=%v: anonymous item must not produce a notification", requested)
		}
		if err := got.CheckInvariants(); err != nil {
			t.Fatalf("invariants: %v", err)
		}
	}
}

func TestRespondPrivateWithEmail(t *testing.T) {
	item := sampleItem(false, "jordan@example.edu")
	got, intent, err := Respond(item, "We replaced the bulb.", false, fixedNow)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.ResponseVisiblePublic == nil || *got.ResponseVisiblePublic {
		t.Fatal("expected private response")
	}
	if got.RespondedAt == nil || !got.RespondedAt.Equal(fixedNow) {
		t.Fatalf("respondedAt = %v, want %v", got.RespondedAt, fixedNow)
	}
	if intent == nil {
		t.Fatal("expected notification intent")
	}
	if intent.To != "jordan@example.edu" {
		t.Fatalf("intent.To = %q", intent.To)
	}
	if intent.Subject != "Response to your feedback: Broken projector" {
		t.Fatalf("intent.Subject = %q", intent.Subject)
	}
	for _, want := range []string{item.Title, item.Description, "We replaced the bulb."} {
		if !strings.Contains(intent.Body, want) {
			t.Fatalf("intent body missing %q", want)
		}
	}
}

func TestRespondWithoutEmailProducesNoIntent(t *testing.T) {
	item := sampleItem(false, "")
	got, intent, err := Respond(item, "Thanks!", true, fixedNow)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if intent != nil {
		t.Fatal("no contact address means no notification")
	}
	if !*got.ResponseVisiblePublic {
		t.Fatal("requested visibility should be kept for non-anonymous items")
	}
}

func TestRespondRejectsBlankText(t *testing.T) {
	item := sampleItem(false, "jordan@example.edu")
	got, intent, err := Respond(item, "   \n", true, fixedNow)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if intent != nil || got.ResponseText != nil || got.RespondedAt != nil {
		t.Fatal("blank response must not modify the item")
	}
}

func TestRespondOverwrites(t *testing.T) {
	item := sampleItem(false, "jordan@example.edu")
	first, _, err := Respond(item, "first", true, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	later := fixedNow.Add(time.Hour)
	second, _, err := Respond(first, "second", false, later)
	if err != nil {
		t.Fatal(err)
	}
	if *second.ResponseText != "second" || *second.ResponseVisiblePublic || !second.RespondedAt.Equal(later) {
		t.Fatalf("unexpected overwrite result: %+v", second)
	}
	if *first.ResponseText != "first" {
		t.Fatal("respond must not mutate the input item")
	}
}

func TestCheckInvariants(t *testing.T) {
	text := "hello"
	private := false
	at := fixedNow

	cases := []struct {
		name   string
		mutate func(*Item)
		ok     bool
	}{
		{name: "fresh item", mutate: func(*Item) {}, ok: true},
		{name: "text without timestamp", mutate: func(i *Item) { i.ResponseText = &text }, ok: false},
		{name: "timestamp without text", mutate: func(i *Item) { i.RespondedAt = &at }, ok: false},
		{name: "anonymous private response", mutate: func(i *Item) {
			i.IsAnonymous = true
			i.ResponseText = &text
			i.RespondedAt = &at
			i.ResponseVisiblePublic = &private
		}, ok: false},
		{name: "unknown category", mutate: func(i *Item) { i.Category = "parking" }, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := sampleItem(false, "")
			tc.mutate(&item)
			err := item.CheckInvariants()
			if (err == nil) != tc.ok {
				t.Fatalf("CheckInvariants() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestNewItem(t *testing.T) {
	item, err := NewItem(SubmitInput{
		Title:        "  Leaking roof ",
		Description:  "Water drips in the hallway.",
		Category:     "facilities",
		Priority:     "high",
		ContactEmail: "sam@example.edu",
	}, "user-9", fixedNow)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if item.Status != StatusPending {
		t.Fatalf("status = %q, want pending", item.Status)
	}
	if item.Title != "Leaking roof" || item.Category != CategoryFacilities || item.Priority != PriorityHigh {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.ContactEmail() != "sam@example.edu" {
		t.Fatalf("contact email = %q", item.ContactEmail())
	}
}

func TestNewItemAnonymousDropsContact(t *testing.T) {
	item, err := NewItem(SubmitInput{
		Title:        "Cafeteria hours",
		Description:  "Open later please.",
		Category:     "cafeteria",
		Priority:     "low",
		Anonymous:    true,
		ContactEmail: "not-even-valid",
	}, "user-9", fixedNow)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if item.Submitter != nil || item.ContactEmail() != "" {
		t.Fatal("anonymous submissions must not keep contact details")
	}
}

func TestNewItemFieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		input SubmitInput
		field string
		want  string
	}{
		{
			name:  "missing category",
			input: SubmitInput{Title: "t", Description: "d", Priority: "low"},
			field: "category",
			want:  missingClassification,
		},
		{
			name:  "unknown priority",
			input: SubmitInput{Title: "t", Description: "d", Category: "library", Priority: "urgent"},
			field: "priority",
			want:  missingClassification,
		},
		{
			name:  "blank title",
			input: SubmitInput{Title: "   ", Description: "d", Category: "library", Priority: "low"},
			field: "title",
			want:  "Title is required.",
		},
		{
			name:  "bad email",
			input: SubmitInput{Title: "t", Description: "d", Category: "library", Priority: "low", ContactEmail: "nope"},
			field: "contactEmail",
			want:  "Enter a valid email address.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewItem(tc.input, "user-1", fixedNow)
			var fields FieldErrors
			if !errors.As(err, &fields) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatal("FieldErrors should match ErrValidation")
			}
			if fields[tc.field] != tc.want {
				t.Fatalf("fields[%q] = %q, want %q (all: %v)", tc.field, fields[tc.field], tc.want, fields)
			}
		})
	}
}

func TestPublicProjectionHidesPrivateResponse(t *testing.T) {
	item := sampleItem(false, "jordan@example.edu")
	item.Status = StatusPublished
	responded, _, err := Respond(item, "private note", false, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	view := Public(responded)
	if view.Response != "" || view.RespondedAt != nil {
		t.Fatal("private response leaked into public view")
	}
	if view.Author != "Jordan" {
		t.Fatalf("author = %q", view.Author)
	}

	anon := sampleItem(true, "")
	if Public(anon).Author != "Anonymous" {
		t.Fatal("anonymous author should be hidden")
	}
}

func TestFilterMatches(t *testing.T) {
	item := sampleItem(false, "jordan@example.edu")
	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: Filter{}, want: true},
		{name: "status mismatch", filter: Filter{Status: StatusPublished}, want: false},
		{name: "category", filter: Filter{Category: CategoryFacilities}, want: true},
		{name: "priority mismatch", filter: Filter{Priority: PriorityLow}, want: false},
		{name: "title query", filter: Filter{Query: "PROJECTOR"}, want: true},
		{name: "author query", filter: Filter{Query: "jord"}, want: true},
		{name: "no match", filter: Filter{Query: "parking"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(item); got != tc.want {
				t.Fatalf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}

	anon := sampleItem(true, "")
	if !(Filter{Query: "anonym"}).Matches(anon) {
		t.Fatal("anonymous items should match the word anonymous")
	}
}

func TestParseEnums(t *testing.T) {
	if c, err := ParseCategory(" Safety "); err != nil || c != CategorySafety {
		t.Fatalf("ParseCategory() = %q, %v", c, err)
	}
	if _, err := ParseStatus("closed"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseStatus(closed) error = %v", err)
	}
	if PriorityCritical.Rank() >= PriorityLow.Rank() {
		t.Fatal("critical must rank ahead of low")
	}
	for _, c := range Categories {
		if CategoryBadgeClass(c) == "bg-slate-500 text-white" {
			t.Fatalf("category %q has no badge", c)
		}
	}
}
