// Package email delivers invitation and password mail through SendGrid.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	APIKey   string
	From     string
	FromName string
	AppName  string
	Sandbox  bool
}

// sender is the part of *sendgrid.Client the service uses.
type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type Service struct {
	config Config
	client sender
	log    logrus.FieldLogger
}

func NewService(config Config, log logrus.FieldLogger) *Service {
	if config.AppName == "" {
		config.AppName = "RealtyCRM"
	}
	var client sender
	if config.APIKey != "" {
		client = sendgrid.NewSendClient(config.APIKey)
	}
	return &Service{config: config, client: client, log: log}
}

func (s *Service) IsConfigured() bool {
	return s.client != nil && s.config.From != ""
}

// SendHTMLEmail sends one message with a plain-text alternative.
func (s *Service) SendHTMLEmail(toName, toAddr, subject, plain, html string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := mail.NewEmail(s.config.FromName, s.config.From)
	to := mail.NewEmail(toName, toAddr)
	message := mail.NewSingleEmail(from, subject, to, plain, html)
	if s.config.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	resp, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("send via sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send via sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type InvitationData struct {
	AppName     string
	UserName    string
	CompanyName string
	Role        string
	InviterName string
	AcceptURL   string
	ExpiresAt   string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// SendInvitation mails the set-password link to a new team member. When no
// provider is configured the link is logged instead so local setups work.
func (s *Service) SendInvitation(to, userName, companyName, role, inviterName, acceptURL string, expiresAt time.Time) error {
	data := InvitationData{
		AppName:     s.config.AppName,
		UserName:    userName,
		CompanyName: companyName,
		Role:        role,
		InviterName: inviterName,
		AcceptURL:   acceptURL,
		ExpiresAt:   expiresAt.UTC().Format("2 Jan 2006 15:04 MST"),
	}
	if !s.IsConfigured() {
		s.log.WithFields(logrus.Fields{"to": to, "link": acceptURL}).Info("email disabled; invitation link")
		return nil
	}

	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	subject := fmt.Sprintf("You're invited to join %s on %s", companyName, s.config.AppName)
	plain := fmt.Sprintf("%s invited you to join %s as %s. Set your password: %s", inviterName, companyName, role, acceptURL)
	return s.SendHTMLEmail(userName, to, subject, plain, html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	if !s.IsConfigured() {
		s.log.WithFields(logrus.Fields{"to": to, "link": resetURL}).Info("email disabled; password reset link")
		return nil
	}
	data := PasswordResetData{
		AppName:  s.config.AppName,
		UserName: userName,
		ResetURL: resetURL,
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	subject := fmt.Sprintf("Reset your %s password", s.config.AppName)
	return s.SendHTMLEmail(userName, to, subject, "Reset your password: "+resetURL, html)
}

var templates = map[string]*template.Template{}

func renderTemplate(name string, data any) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const (
	invitationEmailTemplate    = "invitation"
	passwordResetEmailTemplate = "password_reset"
)

func init() {
	templates[invitationEmailTemplate] = template.Must(template.New(invitationEmailTemplate).Parse(invitationHTML))
	templates[passwordResetEmailTemplate] = template.Must(template.New(passwordResetEmailTemplate).Parse(passwordResetHTML))
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1f7a4d; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1f7a4d; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #1f7a4d; }`

const invitationHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Join {{.CompanyName}} on {{.AppName}}</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>

    <h2>Hi {{.UserName}},</h2>

    <p>{{.InviterName}} has invited you to join <strong>{{.CompanyName}}</strong> as <strong>{{.Role}}</strong>.</p>

    <p><a href="{{.AcceptURL}}" class="button">Set your password</a></p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.AcceptURL}}</p>

    <p>This invitation expires on {{.ExpiresAt}}.</p>

    <div class="footer">
        <p>If you were not expecting this invitation, you can ignore this email.</p>
    </div>
</body>
</html>`

const passwordResetHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>

    <h2>Password Reset Request</h2>

    <p>Hi {{.UserName}},</p>

    <p>We received a request to reset your password. Click the button below to choose a new one:</p>

    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>

    <p><strong>Important:</strong> this link expires in 1 hour.</p>

    <div class="footer">
        <p>If you didn't request a password reset, you can ignore this email. Your password will remain unchanged.</p>
    </div>
</body>
</html>`
