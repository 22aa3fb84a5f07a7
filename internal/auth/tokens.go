package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/store"
)

const sessionKey = "session"

// Tokens is the persisted bearer token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStore persists a Tokens value across process runs.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

// StoreTokens keeps the token pair in a store.Store under the auth namespace.
type StoreTokens struct {
	st store.Store
}

// NewStoreTokens returns a TokenStore backed by st.
func NewStoreTokens(st store.Store) *StoreTokens {
	return &StoreTokens{st: st}
}

func (s *StoreTokens) Load(ctx context.Context) (Tokens, error) {
	var t Tokens
	if _, err := s.st.Get(ctx, store.NamespaceAuth, sessionKey, &t); err != nil {
		return Tokens{}, eris.Wrap(err, "auth: load tokens")
	}
	return t, nil
}

func (s *StoreTokens) Save(ctx context.Context, t Tokens) error {
	return eris.Wrap(s.st.Put(ctx, store.NamespaceAuth, sessionKey, t), "auth: save tokens")
}

func (s *StoreTokens) Clear(ctx context.Context) error {
	return eris.Wrap(s.st.Delete(ctx, store.NamespaceAuth, sessionKey), "auth: clear tokens")
}

// Expiry reads the exp claim of a JWT without verifying its signature.
// ok is false when the token carries no exp claim.
func Expiry(token string) (exp time.Time, ok bool, err error) {
	if token == "" {
		return time.Time{}, false, eris.New("auth: empty token")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false, eris.Wrap(err, "auth: parse token")
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false, nil
	}
	return claims.ExpiresAt.Time, true, nil
}
