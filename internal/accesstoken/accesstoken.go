// Package accesstoken issues the bearer tokens that let a customer without an
// account read back their own order.
package accesstoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTTL = time.Hour
	tokenBytes = 32
)

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Status int

const (
	Valid Status = iota
	NotFound
	Expired
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrUnknownToken is returned by a Finder when no order holds the token.
var ErrUnknownToken = errors.New("unknown access token")

// Finder resolves a token to its expiry.
type Finder interface {
	TokenExpiry(ctx context.Context, token string) (time.Time, error)
}

type Issuer struct {
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of the issuer reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	dup := *i
	dup.now = now
	return &dup
}

func (i *Issuer) Now() time.Time {
	return i.now()
}

func (i *Issuer) Issue() (Token, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("read random: %w", err)
	}
	return Token{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: i.now().Add(i.ttl),
	}, nil
}

// Check reports whether a token expiring at expiresAt is still usable.
// A token is expired once now is strictly after its expiry.
func (i *Issuer) Check(expiresAt time.Time) Status {
	if i.now().After(expiresAt) {
		return Expired
	}
	return Valid
}

func (i *Issuer) Validate(ctx context.Context, finder Finder, token string) (Status, error) {
	if token == "" {
		return NotFound, nil
	}
	expiresAt, err := finder.TokenExpiry(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			return NotFound, nil
		}
		return NotFound, err
	}
	return i.Check(expiresAt), nil
}
