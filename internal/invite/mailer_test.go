package invite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPMailer_sendsHTMLInvitation(t *testing.T) {
	var got mailPayload
	var authHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer, err := NewHTTPMailer(srv.URL, "test-key", "noreply@example.com")
	require.NoError(t, err)

	err = mailer.SendInvitation(context.Background(), "invitee@example.com", "Impact <Labs>", "https://app.example.com/invite/tok123")
	require.NoError(t, err)

	require.Equal(t, "Bearer test-key", authHeader)
	require.Equal(t, "noreply@example.com", got.From)
	require.Equal(t, "invitee@example.com", got.To)
	require.Contains(t, got.Subject, "Impact <Labs>")

	// The HTML body carries the accept link and escapes the org name.
	require.Contains(t, got.HTML, `href="https://app.example.com/invite/tok123"`)
	require.Contains(t, got.HTML, "Impact &lt;Labs&gt;")
	require.NotContains(t, got.HTML, "Impact <Labs>")
	require.Contains(t, got.HTML, "expires in 7 days")

	// A plain-text alternative rides along for clients that refuse HTML.
	require.Contains(t, got.Text, "https://app.example.com/invite/tok123")
}

func TestHTTPMailer_providerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	mailer, err := NewHTTPMailer(srv.URL, "test-key", "noreply@example.com")
	require.NoError(t, err)

	err = mailer.SendInvitation(context.Background(), "invitee@example.com", "Impact Labs", "https://app.example.com/invite/tok123")
	require.ErrorContains(t, err, "429")
}

func TestNewHTTPMailer_requiresConfig(t *testing.T) {
	_, err := NewHTTPMailer("", "key", "from@example.com")
	require.Error(t, err)

	_, err = NewHTTPMailer("https://mail.example.com", "", "from@example.com")
	require.Error(t, err)
}
