package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

// SessionCookieName is the cookie the frontend carries.
const SessionCookieName = "emhr_session"

var ErrNoSession = errors.New("no active session")

// SessionManager keeps the principal in a signed, encrypted cookie.
type SessionManager struct {
	store *sessions.CookieStore
}

// NewSessionManager derives the signing and encryption keys from secret.
// secure should be true whenever the API is served over TLS.
func NewSessionManager(secret []byte, maxAge int, secure bool) *SessionManager {
	hashKey, blockKey := deriveSessionKeys(secret)
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// Save writes p into the session cookie.
func (m *SessionManager) Save(c echo.Context, p *Principal) error {
	sess, err := m.store.Get(c.Request(), SessionCookieName)
	if err != nil && sess == nil {
		return fmt.Errorf("load session: %w", err)
	}
	sess.Values["user_id"] = p.UserID
	sess.Values["username"] = p.Username
	sess.Values["role"] = p.Role
	sess.Values["tenant_id"] = p.TenantID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear expires the session cookie.
func (m *SessionManager) Clear(c echo.Context) error {
	sess, _ := m.store.Get(c.Request(), SessionCookieName)
	if sess == nil {
		return nil
	}
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// Load reads the principal from the request's session cookie.
func (m *SessionManager) Load(r *http.Request) (*Principal, error) {
	if _, err := r.Cookie(SessionCookieName); err != nil {
		return nil, ErrNoSession
	}
	sess, err := m.store.Get(r, SessionCookieName)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	uid, ok := sess.Values["user_id"].(int64)
	if !ok || uid == 0 {
		return nil, ErrNoSession
	}
	p := &Principal{UserID: uid}
	p.Username, _ = sess.Values["username"].(string)
	p.Role, _ = sess.Values["role"].(string)
	p.TenantID, _ = sess.Values["tenant_id"].(string)
	return p, nil
}

// deriveSessionKeys stretches secret into a 32-byte HMAC key and a 32-byte AES key.
func deriveSessionKeys(secret []byte) ([]byte, []byte) {
	hash := sha256.Sum256(append([]byte("emhr-session-hash:"), secret...))
	block := sha256.Sum256(append([]byte("emhr-session-block:"), secret...))
	return hash[:], block[:]
}
