package tenant

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// ActiveOrgCookieName mirrors the resolved organization for the frontend.
	// It is never read back for authorization; the session record decides.
	ActiveOrgCookieName = "active_organization_id"

	// SidebarCookieName stores a UI preference and is readable by scripts.
	SidebarCookieName = "sidebar_state"

	cookieMaxAge = int(365 * 24 * time.Hour / time.Second)
)

func SetActiveOrgCookie(w http.ResponseWriter, orgID uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     ActiveOrgCookieName,
		Value:    orgID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   cookieMaxAge,
	})
}

func ClearActiveOrgCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ActiveOrgCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func SetSidebarCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SidebarCookieName,
		Value:    state,
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   cookieMaxAge,
	})
}
