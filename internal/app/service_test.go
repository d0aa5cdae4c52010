package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/analytics"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/comment"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/config"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/export"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/reaction"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/search"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/session"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/store"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/util"
)

// fakeStore is an in-memory dataStore. The Fn fields override single
// operations to inject failures.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	tokens    map[string]string
	items     map[string]feedback.Item
	reactions map[string]reaction.Reaction
	comments  []comment.Comment

	ensureCalls       int
	listCommentsCalls int

	upsertReactionFn func(context.Context, reaction.Reaction) error
	commentCountsFn  func(context.Context, []string) (map[string]int, error)
	insertCommentFn  func(context.Context, comment.Comment) (comment.Comment, error)
	pingFn           func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		tokens:    make(map[string]string),
		items:     make(map[string]feedback.Item),
		reactions: make(map[string]reaction.Reaction),
	}
}

func (f *fakeStore) addUser(user store.User) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = util.NewUUID()
	}
	f.users[user.ID] = user
	return user
}

// joined mimics the profile join of the SQL store.
func (f *fakeStore) joined(item feedback.Item) feedback.Item {
	submitter := feedback.Submitter{}
	if item.Submitter != nil {
		submitter.Email = item.Submitter.Email
	}
	if user, ok := f.users[item.UserID]; ok {
		submitter.DisplayName = user.DisplayName
		if submitter.Email == "" {
			submitter.Email = user.Email
		}
	}
	item.Submitter = &submitter
	return item
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	f.tokens[token] = userID
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return sql.ErrNoRows
	}
	user := f.users[id]
	user.IsEmailVerified = true
	user.VerificationToken = ""
	f.users[id] = user
	delete(f.tokens, token)
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) EnsureDisplayName(_ context.Context, userID, fallback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	user, ok := f.users[userID]
	if ok && strings.TrimSpace(user.DisplayName) == "" {
		user.DisplayName = fallback
		f.users[userID] = user
	}
	return nil
}

func (f *fakeStore) UpdateDisplayName(_ context.Context, userID, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.DisplayName = displayName
	f.users[userID] = user
	return nil
}

func (f *fakeStore) PromoteAdmins(_ context.Context, emails []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, user := range f.users {
		for _, email := range emails {
			if strings.EqualFold(user.Email, email) && user.Role != "admin" {
				user.Role = "admin"
				f.users[id] = user
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeStore) InsertFeedback(_ context.Context, item feedback.Item) (feedback.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == "" {
		item.ID = util.NewUUID()
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetFeedback(_ context.Context, id string) (feedback.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return feedback.Item{}, sql.ErrNoRows
	}
	return f.joined(item), nil
}

func (f *fakeStore) list(keep func(feedback.Item) bool) []feedback.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]feedback.Item, 0, len(f.items))
	for _, item := range f.items {
		if keep(item) {
			out = append(out, f.joined(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) ListFeedback(context.Context) ([]feedback.Item, error) {
	return f.list(func(feedback.Item) bool { return true }), nil
}

func (f *fakeStore) ListPublishedFeedback(context.Context) ([]feedback.Item, error) {
	return f.list(feedback.IsPublic), nil
}

func (f *fakeStore) UpdateFeedbackStatus(_ context.Context, id string, status feedback.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = status
	f.items[id] = item
	return nil
}

func (f *fakeStore) SaveResponse(_ context.Context, item feedback.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[item.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.ResponseText = item.ResponseText
	stored.ResponseVisiblePublic = item.ResponseVisiblePublic
	stored.RespondedAt = item.RespondedAt
	f.items[item.ID] = stored
	return nil
}

func (f *fakeStore) ListReactions(_ context.Context, itemIDs []string) ([]reaction.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var out []reaction.Reaction
	for _, r := range f.reactions {
		if wanted[r.ItemID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertReaction(ctx context.Context, r reaction.Reaction) error {
	if f.upsertReactionFn != nil {
		if err := f.upsertReactionFn(ctx, r); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[r.ItemID+"|"+r.UserID] = r
	return nil
}

func (f *fakeStore) DeleteReaction(_ context.Context, itemID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions, itemID+"|"+userID)
	return nil
}

func (f *fakeStore) InsertComment(ctx context.Context, c comment.Comment) (comment.Comment, error) {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, c)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = util.NewUUID()
	c.CreatedAt = time.Now().UTC()
	f.comments = append(f.comments, c)
	return c, nil
}

func (f *fakeStore) ListComments(_ context.Context, itemID string) ([]comment.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCommentsCalls++
	var out []comment.Comment
	for _, c := range f.comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CommentCounts(ctx context.Context, itemIDs []string) (map[string]int, error) {
	if f.commentCountsFn != nil {
		return f.commentCountsFn(ctx, itemIDs)
	}
	rows, _ := f.CommentItemIDs(ctx, itemIDs)
	return comment.GroupCounts(itemIDs, rows), nil
}

func (f *fakeStore) CommentItemIDs(_ context.Context, itemIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var out []string
	for _, c := range f.comments {
		if wanted[c.ItemID] {
			out = append(out, c.ItemID)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeMailer struct {
	configured bool
	err        error
	sent       []feedback.NotificationIntent
	verify     []string
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendNotification(intent feedback.NotificationIntent) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, intent)
	return nil
}

func (m *fakeMailer) SendVerificationEmail(to, _, link string) error {
	m.verify = append(m.verify, to+" "+link)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.FeedbackRecord
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ID: "hit", Title: q.Text}}, Total: 1, Query: q.Text, Backend: "postgres"}
}

func (f *fakeSearch) Index(record search.FeedbackRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
}

func (f *fakeSearch) Reindex(ctx context.Context, load func(context.Context) ([]search.FeedbackRecord, error)) {
	records, err := load(ctx)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
}

type fakeReporter struct {
	snapshots []analytics.Snapshot
	err       error
}

func (f *fakeReporter) Report(_ context.Context, snapshot analytics.Snapshot, format export.Format, at time.Time) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.snapshots = append(f.snapshots, snapshot)
	return &export.Result{
		Data:     []byte("<html>report</html>"),
		Filename: "feedback-analytics." + string(format),
		MimeType: "text/html; charset=utf-8",
	}, nil
}

type testEnv struct {
	svc      *Service
	server   http.Handler
	store    *fakeStore
	mail     *fakeMailer
	search   *fakeSearch
	reports  *fakeReporter
	sessions *session.RedisStore
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	env := &testEnv{
		store:    newFakeStore(),
		mail:     &fakeMailer{},
		search:   &fakeSearch{},
		reports:  &fakeReporter{},
		sessions: sessions,
		redis:    mr,
	}
	env.svc = New(config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		ViewTTL:    30 * time.Minute,
		AppURL:     "http://portal.test",
	}, Deps{
		Store:    env.store,
		Sessions: sessions,
		Search:   env.search,
		Reports:  env.reports,
		Mail:     env.mail,
	})
	env.server = NewHTTPServer(env.svc, "*").Handler()
	return env
}

// signIn creates a verified profile and returns a session for it.
func (e *testEnv) signIn(t *testing.T, email, role string) Session {
	t.Helper()
	user := e.store.addUser(store.User{Email: email, Role: role, IsEmailVerified: true})
	current, err := e.svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	return current
}

func (e *testEnv) seedItem(t *testing.T, owner Session, status feedback.Status, anonymous bool, contact string) feedback.Item {
	t.Helper()
	item := feedback.Item{
		UserID:      owner.UserID,
		Title:       "Broken projector",
		Description: "Room 204 projector flickers",
		Category:    feedback.CategoryFacilities,
		Priority:    feedback.PriorityHigh,
		Status:      status,
		IsAnonymous: anonymous,
		CreatedAt:   time.Now().UTC().Add(-time.Duration(len(e.store.items)+1) * time.Minute),
	}
	if contact != "" {
		item.Submitter = &feedback.Submitter{Email: contact}
	}
	stored, err := e.store.InsertFeedback(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	return stored
}

func (e *testEnv) do(t *testing.T, current *Session, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if current != nil {
		req.Header.Set("Authorization", "Bearer "+current.Token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func TestBootstrapPromotesAdminsAndReindexes(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.AdminEmails = []string{"dean@school.edu"}
	student := env.signIn(t, "student@school.edu", "user")
	env.store.addUser(store.User{Email: "Dean@School.edu", Role: "user"})
	env.seedItem(t, student, feedback.StatusPending, false, "")

	if err := env.svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	dean, _ := env.store.GetUserByEmail(context.Background(), "dean@school.edu")
	if dean.Role != "admin" {
		t.Fatalf("dean role = %q, want admin", dean.Role)
	}
	if len(env.search.indexed) != 1 {
		t.Fatalf("reindexed %d records, want 1", len(env.search.indexed))
	}
}

func TestSessionRoleFollowsProfile(t *testing.T) {
	env := newTestEnv(t)
	current := env.signIn(t, "dean@school.edu", "user")
	if _, err := env.store.PromoteAdmins(context.Background(), []string{"dean@school.edu"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := env.svc.SessionFromToken(context.Background(), current.Token)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Role != "admin" {
		t.Fatalf("role = %q, want admin after promotion", loaded.Role)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	current := env.signIn(t, "student@school.edu", "user")

	next, err := env.svc.Refresh(context.Background(), current.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.Token == "" || next.RefreshToken == current.RefreshToken {
		t.Fatal("refresh should issue a new token pair")
	}
	if _, err := env.svc.Refresh(context.Background(), current.RefreshToken); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("old refresh token should be spent, got %v", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	current := env.signIn(t, "student@school.edu", "user")

	rr := env.do(t, &current, http.MethodPost, "/api/session/logout", `{"refreshToken":"`+current.RefreshToken+`"}`)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, &current, http.MethodGet, "/api/feed", "")
	expectStatus(t, rr, http.StatusUnauthorized)
	if _, err := env.svc.Refresh(context.Background(), current.RefreshToken); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("refresh after logout should fail, got %v", err)
	}
}

func TestViewsExpireAfterTTL(t *testing.T) {
	env := newTestEnv(t)
	clock := time.Now()
	env.svc.now = func() time.Time { return clock }
	current := env.signIn(t, "student@school.edu", "user")

	first := env.svc.viewFor(current)
	if again := env.svc.viewFor(current); again != first {
		t.Fatal("view should be reused within its TTL")
	}

	clock = clock.Add(31 * time.Minute)
	if expired := env.svc.viewFor(current); expired == first {
		t.Fatal("view should be replaced after its TTL")
	}
}

func TestRespondDispatchOutcomes(t *testing.T) {
	env := newTestEnv(t)
	student := env.signIn(t, "student@school.edu", "user")
	item := env.seedItem(t, student, feedback.StatusPublished, false, "alt@school.edu")
	input := RespondInput{ResponseText: "Fixed on Monday", VisiblePublic: false}

	result, err := env.svc.Respond(context.Background(), item.ID, input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Notified || len(env.mail.sent) != 0 {
		t.Fatal("without SMTP the notification is skipped")
	}

	env.mail.configured = true
	env.mail.err = errors.New("smtp down")
	result, err = env.svc.Respond(context.Background(), item.ID, input)
	if err != nil {
		t.Fatalf("mail failure must not fail the response: %v", err)
	}
	if result.Notified {
		t.Fatal("failed delivery should report notified=false")
	}

	env.mail.err = nil
	result, err = env.svc.Respond(context.Background(), item.ID, input)
	if err != nil || !result.Notified {
		t.Fatalf("Respond = %+v, %v", result, err)
	}
	if got := env.mail.sent[0]; got.To != "alt@school.edu" || got.Subject != "Response to your feedback: Broken projector" {
		t.Fatalf("intent = %+v", got)
	}
}

func TestRespondRejectsBlankBeforeStore(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Respond(context.Background(), "not-a-uuid", RespondInput{ResponseText: "   "})
	var fields feedback.FieldErrors
	if !errors.As(err, &fields) || fields["responseText"] == "" {
		t.Fatalf("expected field error on responseText, got %v", err)
	}
}
