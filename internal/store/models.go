package store

import "time"

// User is a row of profiles. DisplayName may be empty for accounts created
// before a name was chosen.
type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DefaultDisplayName is the local part of an email address, used when a
// profile has no display name of its own.
func DefaultDisplayName(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}
	return email
}
