package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/auth"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/authpw"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/comment"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/export"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/rbac"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/reaction"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/search"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/session"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// forbid writes a 403 and logs the denied action.
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, current Session, action rbac.Action) {
	log.Printf("rbac: denied %s for user %s (role %s) on %s %s", action, current.UserID, current.Role, r.Method, r.URL.Path)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.service.metrics != nil {
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		current, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        current.UserID,
			"userName":      current.UserName,
			"email":         current.Email,
			"role":          current.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.RefreshToken) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		current, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(current))
		return
	}

	current, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), current, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "profile":
		s.handleProfile(w, r, current)
	case len(parts) == 2 && parts[1] == "feed" && r.Method == http.MethodGet:
		if !s.require(w, r, current, rbac.ActionRead) {
			return
		}
		entries, err := s.service.PublicFeed(r.Context(), current)
		respond(w, http.StatusOK, map[string]any{"items": entries}, err)
	case len(parts) == 2 && parts[1] == "feedback" && r.Method == http.MethodPost:
		s.handleSubmit(w, r, current)
	case len(parts) >= 3 && parts[1] == "feedback":
		s.handleFeedbackItem(w, r, current, parts[2], parts[3:])
	case len(parts) == 2 && parts[1] == "dashboard" && r.Method == http.MethodGet:
		s.handleDashboard(w, r, current)
	case len(parts) == 2 && parts[1] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r, current)
	case len(parts) == 2 && parts[1] == "analytics" && r.Method == http.MethodGet:
		if !s.require(w, r, current, rbac.ActionAnalytics) {
			return
		}
		snapshot, err := s.service.Analytics(r.Context())
		respond(w, http.StatusOK, snapshot, err)
	case len(parts) == 3 && parts[1] == "analytics" && parts[2] == "report" && r.Method == http.MethodGet:
		s.handleReport(w, r, current)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"sessions": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// require checks the access gate and writes the 403 itself.
func (s *HTTPServer) require(w http.ResponseWriter, r *http.Request, current Session, action rbac.Action) bool {
	if s.service.Can(current.Role, action) {
		return true
	}
	s.forbid(w, r, current, action)
	return false
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, current Session) {
	if !s.require(w, r, current, rbac.ActionRead) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		profile, err := s.service.Profile(r.Context(), current)
		respond(w, http.StatusOK, profile, err)
	case http.MethodPut:
		var body struct {
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		profile, err := s.service.UpdateProfile(r.Context(), current, body.DisplayName)
		respond(w, http.StatusOK, profile, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, current Session) {
	if !s.require(w, r, current, rbac.ActionSubmit) {
		return
	}
	var input feedback.SubmitInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.SubmitFeedback(r.Context(), current, input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          item.ID,
		"status":      item.Status,
		"isAnonymous": item.IsAnonymous,
		"createdAt":   item.CreatedAt,
	})
}

func (s *HTTPServer) handleFeedbackItem(w http.ResponseWriter, r *http.Request, current Session, itemID string, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case rest[0] == "reactions" && r.Method == http.MethodPost:
		if !s.require(w, r, current, rbac.ActionReact) {
			return
		}
		var body struct {
			Kind string `json:"kind"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ToggleReaction(r.Context(), current, itemID, body.Kind)
		respond(w, http.StatusOK, result, err)

	case rest[0] == "comments" && r.Method == http.MethodGet:
		if !s.require(w, r, current, rbac.ActionRead) {
			return
		}
		thread, err := s.service.Comments(r.Context(), current, itemID)
		respond(w, http.StatusOK, thread, err)

	case rest[0] == "comments" && r.Method == http.MethodPost:
		if !s.require(w, r, current, rbac.ActionComment) {
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		added, err := s.service.AddComment(r.Context(), current, itemID, body.Content)
		respond(w, http.StatusCreated, added, err)

	case rest[0] == "status" && r.Method == http.MethodPut:
		if !s.require(w, r, current, rbac.ActionModerate) {
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.TransitionStatus(r.Context(), itemID, body.Status)
		respond(w, http.StatusOK, item, err)

	case rest[0] == "response" && r.Method == http.MethodPost:
		if !s.require(w, r, current, rbac.ActionModerate) {
			return
		}
		var body RespondInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Respond(r.Context(), itemID, body)
		respond(w, http.StatusOK, result, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, current Session) {
	if !s.require(w, r, current, rbac.ActionModerate) {
		return
	}
	query := r.URL.Query()
	filter := feedback.Filter{Query: query.Get("q")}
	fields := feedback.FieldErrors{}
	if value := query.Get("status"); value != "" && value != "all" {
		status, err := feedback.ParseStatus(value)
		if err != nil {
			fields["status"] = "Unknown status."
		}
		filter.Status = status
	}
	if value := query.Get("category"); value != "" && value != "all" {
		category, err := feedback.ParseCategory(value)
		if err != nil {
			fields["category"] = "Unknown category."
		}
		filter.Category = category
	}
	if value := query.Get("priority"); value != "" && value != "all" {
		priority, err := feedback.ParsePriority(value)
		if err != nil {
			fields["priority"] = "Unknown priority."
		}
		filter.Priority = priority
	}
	if len(fields) > 0 {
		status, code, message, details := mapError(fields)
		writeError(w, status, code, message, details)
		return
	}

	dashboard, err := s.service.Dashboard(r.Context(), filter)
	respond(w, http.StatusOK, dashboard, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, current Session) {
	if !s.require(w, r, current, rbac.ActionModerate) {
		return
	}
	query := r.URL.Query()
	q := search.Query{
		Text:     strings.TrimSpace(query.Get("q")),
		Status:   query.Get("status"),
		Category: query.Get("category"),
		Priority: query.Get("priority"),
	}
	if value := query.Get("limit"); value != "" {
		q.Limit, _ = strconv.Atoi(value)
	}
	if value := query.Get("offset"); value != "" {
		q.Offset, _ = strconv.Atoi(value)
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request, current Session) {
	if !s.require(w, r, current, rbac.ActionAnalytics) {
		return
	}
	result, err := s.service.ExportAnalytics(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", result.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	current, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		log.Printf("session: lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return current, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewUUID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), writer.status, elapsed)
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			elapsed.Milliseconds(),
		)
	})
}

// routeLabel collapses item ids so metric labels stay bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	for i, part := range parts {
		if util.IsUUID(part) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID, X-Archive-Key")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func sessionPayload(current Session) map[string]any {
	return map[string]any{
		"accessToken":  current.Token,
		"refreshToken": current.RefreshToken,
		"userId":       current.UserID,
		"userName":     current.UserName,
		"role":         current.Role,
		"expiresAt":    current.ExpiresAt.Unix(),
	}
}

// respond writes payload with status, or the mapped error when err is set.
func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		code, errCode, message, details := mapError(err)
		if code == http.StatusInternalServerError {
			log.Printf("app: %v", err)
		}
		writeError(w, code, errCode, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var fields feedback.FieldErrors
	if errors.As(err, &fields) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string(fields)
	}
	switch {
	case errors.Is(err, feedback.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, comment.ErrEmptyContent):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string{"content": "Comment cannot be empty."}
	case errors.Is(err, reaction.ErrUnknownKind):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string{"kind": "Reaction must be like or dislike."}
	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrInvalidToken):
		return http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Auth handlers for email/password accounts

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	response := map[string]any{
		"userId":  resp.User.ID,
		"message": "Please check your email to verify your account",
	}
	// Without SMTP the token is returned so local sign-ups can be verified.
	if !s.service.MailConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	current, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(current))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}
