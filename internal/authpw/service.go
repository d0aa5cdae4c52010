// Package authpw provides email/password accounts with email verification.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const verificationTTL = 24 * time.Hour

var (
	ErrInvalidInput       = errors.New("invalid sign-up details")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired verification token")
)

// UserStore is the profile storage the service needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
}

type Service struct {
	store    UserStore
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store UserStore) *Service {
	return &Service{store: store, validate: validator.New(), now: time.Now}
}

type SignUpRequest struct {
	Email       string `validate:"required,email,max=320"`
	Password    string `validate:"required,min=8,max=72"`
	DisplayName string `validate:"max=80"`
}

type SignUpResponse struct {
	User                store.User
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates an unverified account with the user role. Without a display
// name the local part of the email is used.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, describe(err))
	}
	if req.DisplayName == "" {
		req.DisplayName = store.DefaultDisplayName(req.Email)
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	user := store.User{
		ID:           uuid.NewString(),
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         "user",
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	expiresAt := s.now().Add(verificationTTL)
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, token, expiresAt); err != nil {
		return nil, fmt.Errorf("set verification token: %w", err)
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt

	return &SignUpResponse{User: user, VerificationToken: token, RequiresEmailVerify: true}, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn checks the password. Unverified accounts are reported through
// RequiresVerify rather than an error.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &SignInResponse{User: user, RequiresVerify: !user.IsEmailVerified}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := s.store.VerifyUserEmail(ctx, token); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, strings.ToLower(fe.Field())+" is required")
		case "email":
			parts = append(parts, "email is not valid")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", strings.ToLower(fe.Field()), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param()))
		default:
			parts = append(parts, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return strings.Join(parts, ", ")
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
