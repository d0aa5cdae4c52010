package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/comment"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/reaction"
	"github.com/google/uuid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, COALESCE(display_name, ''), email, password_hash, role, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var expires sql.NullTime
	if err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &expires, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	if expires.Valid {
		user.VerificationExpiresAt = &expires.Time
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE lower(email)=lower($1)`, email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = "user"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, role, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''))
	`, user.ID, user.Email, user.DisplayName, user.Role, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

// VerifyUserEmail consumes a live verification token. sql.ErrNoRows means
// the token is unknown or expired.
func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return expectRow(res)
}

// EnsureDisplayName fills in a display name for profiles that have none.
func (s *PostgresStore) EnsureDisplayName(ctx context.Context, userID, fallback string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET display_name=$2, updated_at=NOW()
		WHERE id=$1 AND (display_name IS NULL OR btrim(display_name) = '')
	`, userID, fallback)
	if err != nil {
		return fmt.Errorf("ensure display name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET display_name=$2, updated_at=NOW() WHERE id=$1`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return expectRow(res)
}

// PromoteAdmins grants the admin role to the given emails and returns how
// many profiles changed.
func (s *PostgresStore) PromoteAdmins(ctx context.Context, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET role='admin', updated_at=NOW()
		WHERE lower(email) = ANY($1::text[]) AND role <> 'admin'
	`, emails)
	if err != nil {
		return 0, fmt.Errorf("promote admins: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("promote admins: %w", err)
	}
	return int(n), nil
}

const feedbackSelect = `
	SELECT f.id, f.user_id, f.title, f.description, f.category, f.priority, f.status, f.is_anonymous,
		f.created_at, COALESCE(p.display_name, ''), COALESCE(f.contact_email, p.email, ''),
		f.response_text, f.response_visible_public, f.responded_at
	FROM feedback f
	LEFT JOIN profiles p ON p.id = f.user_id
`

func scanFeedback(row rowScanner) (feedback.Item, error) {
	var (
		item         feedback.Item
		category     string
		priority     string
		status       string
		displayName  string
		contactEmail string
		responseText sql.NullString
		visible      sql.NullBool
		respondedAt  sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &category, &priority, &status,
		&item.IsAnonymous, &item.CreatedAt, &displayName, &contactEmail, &responseText, &visible, &respondedAt); err != nil {
		return feedback.Item{}, err
	}
	item.Category = feedback.Category(category)
	item.Priority = feedback.Priority(priority)
	item.Status = feedback.Status(status)
	if displayName != "" || contactEmail != "" {
		item.Submitter = &feedback.Submitter{DisplayName: displayName, Email: contactEmail}
	}
	if responseText.Valid {
		item.ResponseText = &responseText.String
	}
	if visible.Valid {
		item.ResponseVisiblePublic = &visible.Bool
	}
	if respondedAt.Valid {
		item.RespondedAt = &respondedAt.Time
	}
	return item, nil
}

func (s *PostgresStore) queryFeedback(ctx context.Context, query string, args ...any) ([]feedback.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	items := make([]feedback.Item, 0)
	for rows.Next() {
		item, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return items, nil
}

// InsertFeedback stores a new item and returns it with its id and creation
// time filled in.
func (s *PostgresStore) InsertFeedback(ctx context.Context, item feedback.Item) (feedback.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	var contact sql.NullString
	if !item.IsAnonymous && item.Submitter != nil && strings.TrimSpace(item.Submitter.Email) != "" {
		contact = sql.NullString{String: item.Submitter.Email, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, user_id, title, description, category, priority, status, is_anonymous, contact_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, item.ID, item.UserID, item.Title, item.Description, string(item.Category), string(item.Priority),
		string(item.Status), item.IsAnonymous, contact, item.CreatedAt).Scan(&item.CreatedAt)
	if err != nil {
		return feedback.Item{}, fmt.Errorf("insert feedback: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetFeedback(ctx context.Context, id string) (feedback.Item, error) {
	return scanFeedback(s.db.QueryRowContext(ctx, feedbackSelect+` WHERE f.id=$1`, id))
}

// ListFeedback returns every item, newest first.
func (s *PostgresStore) ListFeedback(ctx context.Context) ([]feedback.Item, error) {
	return s.queryFeedback(ctx, feedbackSelect+` ORDER BY f.created_at DESC, f.id`)
}

// ListPublishedFeedback returns the public feed, newest first.
func (s *PostgresStore) ListPublishedFeedback(ctx context.Context) ([]feedback.Item, error) {
	return s.queryFeedback(ctx, feedbackSelect+` WHERE f.status=$1 ORDER BY f.created_at DESC, f.id`, string(feedback.StatusPublished))
}

// ListFeedbackByIDs returns the items in ids, newest first. Unknown ids are
// skipped.
func (s *PostgresStore) ListFeedbackByIDs(ctx context.Context, ids []string) ([]feedback.Item, error) {
	if len(ids) == 0 {
		return []feedback.Item{}, nil
	}
	return s.queryFeedback(ctx, feedbackSelect+` WHERE f.id = ANY($1::uuid[]) ORDER BY f.created_at DESC, f.id`, ids)
}

func (s *PostgresStore) UpdateFeedbackStatus(ctx context.Context, id string, status feedback.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feedback SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectRow(res)
}

// SaveResponse writes the three response fields of item together.
func (s *PostgresStore) SaveResponse(ctx context.Context, item feedback.Item) error {
	if item.ResponseText == nil || item.ResponseVisiblePublic == nil || item.RespondedAt == nil {
		return fmt.Errorf("save response: %w", feedback.ErrInvariant)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE feedback SET response_text=$2, response_visible_public=$3, responded_at=$4
		WHERE id=$1
	`, item.ID, *item.ResponseText, *item.ResponseVisiblePublic, *item.RespondedAt)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) ListReactions(ctx context.Context, itemIDs []string) ([]reaction.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feedback_id, user_id, reaction FROM feedback_reactions
		WHERE feedback_id = ANY($1::uuid[])
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	out := make([]reaction.Reaction, 0)
	for rows.Next() {
		var r reaction.Reaction
		var kind string
		if err := rows.Scan(&r.ItemID, &r.UserID, &kind); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		r.Kind = reaction.Kind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertReaction(ctx context.Context, r reaction.Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_reactions (feedback_id, user_id, reaction)
		VALUES ($1, $2, $3)
		ON CONFLICT (feedback_id, user_id) DO UPDATE SET reaction=EXCLUDED.reaction, created_at=NOW()
	`, r.ItemID, r.UserID, string(r.Kind))
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteReaction(ctx context.Context, itemID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feedback_reactions WHERE feedback_id=$1 AND user_id=$2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, c comment.Comment) (comment.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO feedback_comments (id, feedback_id, user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.ItemID, c.AuthorID, c.Content).Scan(&c.CreatedAt)
	if err != nil {
		return comment.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, itemID string) ([]comment.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, feedback_id, user_id, content, created_at
		FROM feedback_comments
		WHERE feedback_id=$1
		ORDER BY created_at ASC, id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]comment.Comment, 0)
	for rows.Next() {
		var c comment.Comment
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

// CommentCounts calls the feedback_comment_counts aggregate. Items without
// comments are absent from the result.
func (s *PostgresStore) CommentCounts(ctx context.Context, itemIDs []string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feedback_id, count FROM feedback_comment_counts($1::uuid[])`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("comment counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan comment count: %w", err)
		}
		out[id] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment counts: %w", err)
	}
	return out, nil
}

// CommentItemIDs returns the feedback id of every comment on itemIDs, one
// row per comment.
func (s *PostgresStore) CommentItemIDs(ctx context.Context, itemIDs []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feedback_id FROM feedback_comments WHERE feedback_id = ANY($1::uuid[])`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("comment rows: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment rows: %w", err)
	}
	return out, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
