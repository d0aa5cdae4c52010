package app

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/analytics"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/auth"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/authpw"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/comment"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/config"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/export"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/metrics"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/rbac"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/reaction"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/search"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/session"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/store"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         rbac.Role
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	reaction.Store
	reaction.Loader
	comment.Store
	comment.CountStore
	GetUserByID(context.Context, string) (store.User, error)
	EnsureDisplayName(context.Context, string, string) error
	UpdateDisplayName(context.Context, string, string) error
	PromoteAdmins(context.Context, []string) (int, error)
	InsertFeedback(context.Context, feedback.Item) (feedback.Item, error)
	GetFeedback(context.Context, string) (feedback.Item, error)
	ListFeedback(context.Context) ([]feedback.Item, error)
	ListPublishedFeedback(context.Context) ([]feedback.Item, error)
	UpdateFeedbackStatus(context.Context, string, feedback.Status) error
	SaveResponse(context.Context, feedback.Item) error
	Ping(context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(context.Context) error
}

type mailer interface {
	IsConfigured() bool
	SendNotification(feedback.NotificationIntent) error
	SendVerificationEmail(to, userName, verificationURL string) error
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
	Index(search.FeedbackRecord)
	Reindex(context.Context, func(context.Context) ([]search.FeedbackRecord, error))
}

type reporter interface {
	Report(context.Context, analytics.Snapshot, export.Format, time.Time) (*export.Result, error)
}

// Deps are the collaborators behind a Service. Search, Reports, Mail and
// Metrics may be nil.
type Deps struct {
	Store    dataStore
	Sessions sessionStore
	Search   searcher
	Reports  reporter
	Mail     mailer
	Metrics  *metrics.Metrics
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	search   searcher
	reports  reporter
	mail     mailer
	metrics  *metrics.Metrics
	now      func() time.Time

	viewTTL time.Duration
	viewMu  sync.Mutex
	views   map[string]*view
}

func New(cfg config.Config, deps Deps) *Service {
	viewTTL := cfg.ViewTTL
	if viewTTL <= 0 {
		viewTTL = 30 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		accounts: authpw.NewService(deps.Store),
		search:   deps.Search,
		reports:  deps.Reports,
		mail:     deps.Mail,
		metrics:  deps.Metrics,
		now:      time.Now,
		viewTTL:  viewTTL,
		views:    make(map[string]*view),
	}
}

// Bootstrap promotes the configured admin emails and rebuilds the search
// index from the store.
func (s *Service) Bootstrap(ctx context.Context) error {
	promoted, err := s.store.PromoteAdmins(ctx, s.cfg.AdminEmails)
	if err != nil {
		return err
	}
	if promoted > 0 {
		log.Printf("bootstrap: promoted %d admin profile(s)", promoted)
	}

	if s.search != nil {
		s.search.Reindex(ctx, func(ctx context.Context) ([]search.FeedbackRecord, error) {
			items, err := s.store.ListFeedback(ctx)
			if err != nil {
				return nil, err
			}
			records := make([]search.FeedbackRecord, 0, len(items))
			for _, item := range items {
				records = append(records, search.RecordFor(item))
			}
			return records, nil
		})
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func (s *Service) MailConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// SignUp creates the account and mails the verification link when SMTP is
// configured. Mail failures do not fail the sign-up.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.MailConfigured() {
		link := strings.TrimRight(s.cfg.AppURL, "/") + "/verify-email?token=" + url.QueryEscape(resp.VerificationToken)
		if err := s.mail.SendVerificationEmail(resp.User.Email, resp.User.DisplayName, link); err != nil {
			log.Printf("notify: verification mail to user %s failed: %v", resp.User.ID, err)
		}
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	resp, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(403, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.accounts.VerifyEmail(ctx, token)
}

// Refresh rotates a refresh token. The role is re-read from the profile so a
// promotion takes effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, session.ErrNotFound
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := rbac.Normalize(user.Role)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  string(role),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and loads the current profile.
// A deleted profile makes the token invalid.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      rbac.Normalize(user.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, current Session, refreshToken string) error {
	if current.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, current.JTI, current.ExpiresAt); err != nil {
			log.Printf("session: revoke access token: %v", err)
		}
		s.dropView(current.JTI)
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("session: revoke refresh token: %v", err)
		}
	}
	return nil
}

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

func profileOf(user store.User) Profile {
	name := user.DisplayName
	if strings.TrimSpace(name) == "" {
		name = store.DefaultDisplayName(user.Email)
	}
	return Profile{ID: user.ID, DisplayName: name, Email: user.Email, Role: string(rbac.Normalize(user.Role))}
}

func (s *Service) Profile(ctx context.Context, current Session) (Profile, error) {
	user, err := s.store.GetUserByID(ctx, current.UserID)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(user), nil
}

const maxDisplayName = 80

func (s *Service) UpdateProfile(ctx context.Context, current Session, displayName string) (Profile, error) {
	displayName = strings.TrimSpace(displayName)
	switch {
	case displayName == "":
		return Profile{}, feedback.FieldErrors{"displayName": "Display name is required."}
	case len([]rune(displayName)) > maxDisplayName:
		return Profile{}, feedback.FieldErrors{"displayName": fmt.Sprintf("Display name must be at most %d characters.", maxDisplayName)}
	}
	if err := s.store.UpdateDisplayName(ctx, current.UserID, displayName); err != nil {
		return Profile{}, err
	}
	return s.Profile(ctx, current)
}

// SubmitFeedback validates the form, makes sure the submitter has a display
// name, and stores the item at status pending.
func (s *Service) SubmitFeedback(ctx context.Context, current Session, input feedback.SubmitInput) (feedback.Item, error) {
	item, err := feedback.NewItem(input, current.UserID, s.now())
	if err != nil {
		return feedback.Item{}, err
	}
	if err := s.store.EnsureDisplayName(ctx, current.UserID, store.DefaultDisplayName(current.Email)); err != nil {
		return feedback.Item{}, err
	}
	stored, err := s.store.InsertFeedback(ctx, item)
	if err != nil {
		return feedback.Item{}, err
	}
	if reloaded, err := s.store.GetFeedback(ctx, stored.ID); err == nil {
		stored = reloaded
	} else {
		log.Printf("feedback: reload %s after insert: %v", stored.ID, err)
	}
	s.index(stored)
	return stored, nil
}

func (s *Service) index(item feedback.Item) {
	if s.search != nil {
		s.search.Index(search.RecordFor(item))
	}
}

var errNotPublished = domainError(409, "NOT_PUBLISHED", "Only published feedback accepts reactions and comments", nil)

// loadItem fetches an item by id; malformed ids are reported as not found.
func (s *Service) loadItem(ctx context.Context, id string) (feedback.Item, error) {
	if !util.IsUUID(id) {
		return feedback.Item{}, domainError(404, "NOT_FOUND", "Feedback not found", nil)
	}
	item, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return feedback.Item{}, domainError(404, "NOT_FOUND", "Feedback not found", nil)
		}
		return feedback.Item{}, err
	}
	return item, nil
}

func (s *Service) loadPublished(ctx context.Context, id string) (feedback.Item, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return feedback.Item{}, err
	}
	if !feedback.IsPublic(item) {
		return feedback.Item{}, errNotPublished
	}
	return item, nil
}
