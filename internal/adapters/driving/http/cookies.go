package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// ErrCookieHashKey is returned when the cookie signing key is too short.
var ErrCookieHashKey = errors.New("cookie hash key must be at least 32 bytes")

// CookieJar reads and writes the cookies that carry the OAuth round trip
// across the platform redirect. Server-only cookies are signed; the account
// list cookie is plain so the select-account page can read it.
type CookieJar struct {
	codec      *securecookie.SecureCookie
	secure     bool
	stateTTL   time.Duration
	stagingTTL time.Duration
}

// NewCookieJar creates a cookie jar signing with hashKey.
func NewCookieJar(hashKey []byte, secure bool, stateTTL, stagingTTL time.Duration) (*CookieJar, error) {
	if len(hashKey) < 32 {
		return nil, ErrCookieHashKey
	}

	maxAge := stateTTL
	if stagingTTL > maxAge {
		maxAge = stagingTTL
	}

	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))

	return &CookieJar{
		codec:      codec,
		secure:     secure,
		stateTTL:   stateTTL,
		stagingTTL: stagingTTL,
	}, nil
}

func stateCookieName(p domain.Platform) string {
	return string(p) + "_oauth_state"
}

func tempConnectionCookieName(p domain.Platform) string {
	return string(p) + "_temp_connection"
}

func accountsListCookieName(p domain.Platform) string {
	return string(p) + "_ad_accounts_list"
}

func (j *CookieJar) set(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: httpOnly,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *CookieJar) clear(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: httpOnly,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *CookieJar) setSigned(w http.ResponseWriter, name, value string, ttl time.Duration) error {
	encoded, err := j.codec.Encode(name, value)
	if err != nil {
		return err
	}
	j.set(w, name, encoded, ttl, true)
	return nil
}

// readSigned returns "" for a missing, tampered or expired cookie.
func (j *CookieJar) readSigned(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return ""
	}
	var value string
	if err := j.codec.Decode(name, c.Value, &value); err != nil {
		return ""
	}
	return value
}

// SetState stores the OAuth state for the platform's callback.
func (j *CookieJar) SetState(w http.ResponseWriter, platform domain.Platform, state string) error {
	return j.setSigned(w, stateCookieName(platform), state, j.stateTTL)
}

// TakeState returns the stored state and deletes the cookie. The value is
// "" when the cookie is absent or invalid.
func (j *CookieJar) TakeState(w http.ResponseWriter, r *http.Request, platform domain.Platform) string {
	state := j.readSigned(r, stateCookieName(platform))
	j.clear(w, stateCookieName(platform), true)
	return state
}

// SetStaging stores the staging handle (server-only) and the account
// candidates (client-readable).
func (j *CookieJar) SetStaging(w http.ResponseWriter, platform domain.Platform, handle string, candidates []domain.AccountCandidate) error {
	if err := j.setSigned(w, tempConnectionCookieName(platform), handle, j.stagingTTL); err != nil {
		return err
	}
	list, err := EncodeAccountList(candidates)
	if err != nil {
		return err
	}
	j.set(w, accountsListCookieName(platform), list, j.stagingTTL, false)
	return nil
}

// StagingHandle returns the staging handle, or "" when absent or invalid.
func (j *CookieJar) StagingHandle(r *http.Request, platform domain.Platform) string {
	return j.readSigned(r, tempConnectionCookieName(platform))
}

// ClearStaging removes both staging cookies.
func (j *CookieJar) ClearStaging(w http.ResponseWriter, platform domain.Platform) {
	j.clear(w, tempConnectionCookieName(platform), true)
	j.clear(w, accountsListCookieName(platform), false)
}

// EncodeAccountList renders candidates as base64url JSON for the
// client-readable cookie.
func EncodeAccountList(candidates []domain.AccountCandidate) (string, error) {
	if candidates == nil {
		candidates = []domain.AccountCandidate{}
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeAccountList is the inverse of EncodeAccountList.
func DecodeAccountList(value string) ([]domain.AccountCandidate, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var candidates []domain.AccountCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}
