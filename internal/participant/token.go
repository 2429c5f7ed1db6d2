// Package participant manages the anonymous participant identity: an opaque
// id carried across requests in a long-lived, HMAC-signed cookie. The
// cookie is the only credential; there is no account behind it.
package participant

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "uid"
	cookieTTL  = 365 * 24 * time.Hour
)

// Issuer mints and verifies signed participant tokens. A tampered or
// foreign cookie simply yields a fresh identity instead of an error page.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue creates a new participant id and its signed cookie value.
func (i *Issuer) Issue() (id, signed string, err error) {
	id = uuid.NewString()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": id,
		"iat": time.Now().Unix(),
	})
	signed, err = tok.SignedString(i.secret)
	return id, signed, err
}

// Verify returns the participant id inside a signed cookie value.
func (i *Issuer) Verify(signed string) (string, error) {
	tok, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// Ensure reads the participant id from the request cookie, minting a fresh
// identity (and setting its cookie) when the cookie is absent or invalid.
func (i *Issuer) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if id, err := i.Verify(c.Value); err == nil {
			return id, nil
		}
	}
	id, signed, err := i.Issue()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(cookieTTL),
	})
	return id, nil
}
