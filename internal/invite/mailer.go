package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Mailer delivers invitation emails. Delivery failures are reported to the
// caller; whether they void the invitation is the caller's decision.
type Mailer interface {
	SendInvitation(ctx context.Context, email, orgName, acceptURL string) error
}

// invitationBody is the fixed HTML template for the invitation email. The
// organization name is attacker-influenced user input, so it goes through
// html/template, never string concatenation.
var invitationBody = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
    <h2>You&rsquo;ve been invited to join {{.OrgName}}</h2>
    <p>Accept the invitation to get access to the {{.OrgName}} workspace.</p>
    <p><a href="{{.AcceptURL}}" style="display: inline-block; padding: 10px 20px; background: #1a1a2e; color: #ffffff; text-decoration: none; border-radius: 4px;">Accept invitation</a></p>
    <p>Or paste this link into your browser: {{.AcceptURL}}</p>
    <p style="color: #666666;">This link expires in 7 days. If you weren&rsquo;t expecting it you can ignore this email.</p>
  </body>
</html>
`))

type invitationBodyData struct {
	OrgName   string
	AcceptURL string
}

// HTTPMailer sends through a transactional email HTTP API.
type HTTPMailer struct {
	endpoint   string
	apiKey     string
	fromEmail  string
	httpClient *http.Client
}

func NewHTTPMailer(endpoint, apiKey, fromEmail string) (*HTTPMailer, error) {
	if endpoint == "" || apiKey == "" || fromEmail == "" {
		return nil, fmt.Errorf("mailer endpoint, API key, and from address are required")
	}
	return &HTTPMailer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		httpClient: http.DefaultClient,
	}, nil
}

type mailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

func (m *HTTPMailer) SendInvitation(ctx context.Context, email, orgName, acceptURL string) error {
	var html bytes.Buffer
	if err := invitationBody.Execute(&html, invitationBodyData{OrgName: orgName, AcceptURL: acceptURL}); err != nil {
		return fmt.Errorf("failed to render invitation email: %w", err)
	}

	payload := mailPayload{
		From:    m.fromEmail,
		To:      email,
		Subject: fmt.Sprintf("You've been invited to join %s", orgName),
		HTML:    html.String(),
		// Plain-text alternative for clients that refuse HTML.
		Text: fmt.Sprintf("You've been invited to join %s.\n\nAccept the invitation here: %s\n\nThis link expires in 7 days.",
			orgName, acceptURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail provider returned HTTP %d", resp.StatusCode)
	}

	return nil
}

// LogMailer writes invitations to the log instead of sending email. Used in
// development and tests.
type LogMailer struct{}

func (LogMailer) SendInvitation(ctx context.Context, email, orgName, acceptURL string) error {
	log.Info().
		Str("email", email).
		Str("org", orgName).
		Str("url", acceptURL).
		Msg("Invitation email (log mailer)")
	return nil
}
