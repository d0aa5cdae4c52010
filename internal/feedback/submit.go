package feedback

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const missingClassification = "Please select a category and priority."

// SubmitInput is the submission form as sent by a signed-in user.
type SubmitInput struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"required,max=5000"`
	Category     string `json:"category" validate:"required"`
	Priority     string `json:"priority" validate:"required"`
	Anonymous    bool   `json:"anonymous"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email,max=320"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// NewItem validates a submission and returns the item to insert, at status
// pending. Contact details are dropped for anonymous submissions.
func NewItem(input SubmitInput, userID string, now time.Time) (Item, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	input.Priority = strings.TrimSpace(input.Priority)
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	if input.Anonymous {
		input.ContactEmail = ""
	}

	if err := validate.Struct(input); err != nil {
		return Item{}, toFieldErrors(err)
	}

	category, err := ParseCategory(input.Category)
	if err != nil {
		return Item{}, FieldErrors{"category": missingClassification}
	}
	priority, err := ParsePriority(input.Priority)
	if err != nil {
		return Item{}, FieldErrors{"priority": missingClassification}
	}

	item := Item{
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		Category:    category,
		Priority:    priority,
		Status:      StatusPending,
		IsAnonymous: input.Anonymous,
		CreatedAt:   now,
	}
	if !input.Anonymous && input.ContactEmail != "" {
		item.Submitter = &Submitter{Email: input.ContactEmail}
	}
	return item, nil
}

func toFieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		field := fe.Field()
		switch {
		case field == "category" || field == "priority":
			out[field] = missingClassification
		case fe.Tag() == "required":
			out[field] = fieldLabel(field) + " is required."
		case fe.Tag() == "max":
			out[field] = fmt.Sprintf("%s must be at most %s characters.", fieldLabel(field), fe.Param())
		case fe.Tag() == "email":
			out[field] = "Enter a valid email address."
		default:
			out[field] = fieldLabel(field) + " is invalid."
		}
	}
	return out
}

func fieldLabel(field string) string {
	switch field {
	case "title":
		return "Title"
	case "description":
		return "Description"
	case "contactEmail":
		return "Contact email"
	default:
		return field
	}
}
