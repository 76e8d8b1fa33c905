// Package session manages the user session cookie and the identity decoded
// from its token.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode reports a token that cannot be turned into an identity.
var ErrDecode = errors.New("decode session token")

// Identity is the user behind a session token. The zero value is anonymous.
type Identity struct {
	Token       string    `json:"-"`
	URI         string    `json:"uri,omitempty"`
	Email       string    `json:"email,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	Admin       bool      `json:"admin"`
	Credentials []string  `json:"credentials,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Anonymous returns the identity used when no valid token is present.
func Anonymous() Identity {
	return Identity{}
}

// IsAnonymous reports whether the identity carries no token.
func (i Identity) IsAnonymous() bool {
	return i.Token == ""
}

// Lifetime returns the whole seconds left before the token expires.
func (i Identity) Lifetime(now time.Time) int {
	if i.ExpiresAt.IsZero() {
		return 0
	}
	left := i.ExpiresAt.Sub(now) / time.Second
	if left < 0 {
		return 0
	}
	return int(left)
}

// HasCredential reports whether the identity holds credential.
func (i Identity) HasCredential(credential string) bool {
	if i.Admin {
		return true
	}
	for _, held := range i.Credentials {
		if held == credential {
			return true
		}
	}
	return false
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Lang            string   `json:"lang"`
	IsAdmin         bool     `json:"is_admin"`
	CredentialsList []string `json:"credentials_list"`
}

// FromToken decodes the identity carried by token. The signature is not
// verified: the authentication backend owns that check. Expired or
// subject-less tokens fail with ErrDecode.
func FromToken(token string, now time.Time) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrDecode)
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrDecode)
	}
	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: missing expiry", ErrDecode)
	}
	expires := claims.ExpiresAt.Time.UTC()
	if !expires.After(now) {
		return Identity{}, fmt.Errorf("%w: token expired at %s", ErrDecode, expires.Format(time.RFC3339))
	}

	return Identity{
		Token:       token,
		URI:         claims.Subject,
		Email:       claims.Email,
		FirstName:   claims.FirstName,
		LastName:    claims.LastName,
		Locale:      claims.Lang,
		Admin:       claims.IsAdmin,
		Credentials: append([]string(nil), claims.CredentialsList...),
		ExpiresAt:   expires,
	}, nil
}
