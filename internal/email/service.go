// Package email delivers response notifications and account mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/feedback"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendNotification delivers a response notification as plain text.
func (s *Service) SendNotification(intent feedback.NotificationIntent) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(intent.To) == "" {
		return fmt.Errorf("notification has no recipient")
	}
	msg := s.plainMessage(intent.To, intent.Subject, intent.Body)
	if err := s.send(s.server, s.auth, s.config.From, []string{intent.To}, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	var body bytes.Buffer
	data := VerificationData{AppName: appName, UserName: userName, VerificationURL: verificationURL}
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	msg := s.htmlMessage(to, "Verify your "+appName+" account", body.String())
	if err := s.send(s.server, s.auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
}

// headerValue strips line breaks so user text cannot add headers.
func headerValue(value string) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	return mime.QEncoding.Encode("utf-8", strings.TrimSpace(value))
}

func (s *Service) plainMessage(to, subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", headerValue(to))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerValue(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

func (s *Service) htmlMessage(to, subject, htmlBody string) []byte {
	const boundary = "portal-alternative"
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", headerValue(to))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerValue(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n", boundary)
	msg.WriteString("Please view this email in an HTML-capable email client.\r\n\r\n")
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n", boundary)
	msg.WriteString(htmlBody)
	fmt.Fprintf(&msg, "\r\n--%s--\r\n", boundary)
	return msg.Bytes()
}

const appName = "Feedback Portal"

var verificationTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2937; max-width: 560px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2563eb; color: white; text-decoration: none; border-radius: 6px; }
        .muted { font-size: 12px; color: #6b7280; }
    </style>
</head>
<body>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Confirm your email address to start sending feedback.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify email</a></p>
    <p class="muted">Or open this link: {{.VerificationURL}}</p>
    <p class="muted">The link expires in 24 hours. If you did not sign up for {{.AppName}}, ignore this email.</p>
</body>
</html>`))
