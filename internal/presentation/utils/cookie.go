package utils

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const CookieConnectionID = "connection_id"

// ConnectionToken returns a stable identity for this browser: the existing
// cookie value when present, a fresh uuid otherwise. Reusing the token
// across reconnects is what makes retried joins land on the same member
// instead of a duplicate.
func ConnectionToken(w http.ResponseWriter, r *http.Request) string {
	token := TokenFromRequest(r)
	if token == "" {
		token = uuid.NewString()
	}

	http.SetCookie(w, ConnectionCookie(token))
	return token
}

// TokenFromRequest extracts the token without minting one; empty when the
// cookie is absent or unreadable.
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieConnectionID)
	if err != nil {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// ConnectionCookie builds the cookie for a token. Websocket upgrades can't
// use http.SetCookie (the handshake writes its own response), so callers
// pass this through the upgrade's response header instead.
func ConnectionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieConnectionID,
		Value:    base64.StdEncoding.EncodeToString([]byte(token)),
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(24 * 30 * time.Hour),
	}
}
