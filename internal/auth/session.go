// Package auth manages the bearer token session: login, registration,
// transparent refresh on 401, and logout.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

// State is the session lifecycle state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// ErrNotAuthenticated is returned by authenticated calls made without an
// access token.
var ErrNotAuthenticated = eris.New("Not authenticated")

// FormError is a server-side login or registration failure, rendered as a
// single form-level message.
type FormError struct {
	Message string
	Err     error
}

func (e *FormError) Error() string { return e.Message }
func (e *FormError) Unwrap() error { return e.Err }

func formError(err error, fallback string) *FormError {
	msg := leadsapi.Detail(err)
	if msg == "" {
		msg = fallback
	}
	return &FormError{Message: msg, Err: err}
}

// API is the subset of the lead generation API used by Session.
type API interface {
	Register(ctx context.Context, req leadsapi.RegisterRequest) (*leadsapi.User, error)
	Login(ctx context.Context, email, password string) (*leadsapi.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*leadsapi.TokenPair, error)
	Me(ctx context.Context) (*leadsapi.User, error)
}

// Session holds the current token pair and implements
// leadsapi.TokenSource. It is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	api    API
	store  TokenStore
	state  State
	tokens Tokens
}

// NewSession returns an anonymous session persisting to ts. Bind must be
// called before any network operation.
func NewSession(ts TokenStore) *Session {
	return &Session{store: ts}
}

// Bind sets the API used for network calls. The API usually takes the
// session itself as its token source, so it is attached after construction.
func (s *Session) Bind(api API) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api = api
}

// Restore loads persisted tokens. A stored access token makes the session
// authenticated without a network call.
func (s *Session) Restore(ctx context.Context) error {
	t, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	if t.AccessToken != "" {
		s.state = Authenticated
	} else {
		s.state = Anonymous
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tokens returns a copy of the current token pair.
func (s *Session) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Bearer returns the current access token, or "".
func (s *Session) Bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.AccessToken
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Login exchanges credentials for a token pair. On failure the session
// stays anonymous and the error is a *FormError.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.setState(Authenticating)

	pair, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.setState(Anonymous)
		zap.L().Debug("auth: login failed", zap.String("email", email), zap.Error(err))
		return formError(err, "Login failed")
	}

	if err := s.save(ctx, Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		s.setState(Anonymous)
		return err
	}
	s.setState(Authenticated)
	zap.L().Info("auth: logged in", zap.String("email", email))
	return nil
}

// Register validates the form locally and, only if it passes, creates the
// account. Validation failures return a *ValidationError without any
// network call. Registration does not log in.
func (s *Session) Register(ctx context.Context, in RegisterInput) (*leadsapi.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user, err := s.api.Register(ctx, leadsapi.RegisterRequest{
		Email:    in.Email,
		Username: in.Username,
		Password: in.Password,
	})
	if err != nil {
		return nil, formError(err, "Registration failed")
	}
	return user, nil
}

// CurrentUser fetches the authenticated identity. A 401 triggers exactly
// one refresh and one retry; a failed refresh or a second 401 logs out.
func (s *Session) CurrentUser(ctx context.Context) (*leadsapi.User, error) {
	if s.Bearer() == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := s.api.Me(ctx)
	if err == nil {
		return user, nil
	}
	if !leadsapi.IsUnauthorized(err) {
		return nil, eris.Wrap(err, "auth: current user")
	}

	if rerr := s.refresh(ctx); rerr != nil {
		s.logout(ctx) //nolint:errcheck
		return nil, eris.Wrap(rerr, "auth: refresh")
	}

	user, err = s.api.Me(ctx)
	if err != nil {
		if leadsapi.IsUnauthorized(err) {
			s.logout(ctx) //nolint:errcheck
		}
		return nil, eris.Wrap(err, "auth: current user after refresh")
	}
	return user, nil
}

func (s *Session) refresh(ctx context.Context) error {
	rt := s.Tokens().RefreshToken
	if rt == "" {
		return eris.New("no refresh token available")
	}
	pair, err := s.api.Refresh(ctx, rt)
	if err != nil {
		return err
	}
	zap.L().Debug("auth: access token refreshed")
	return s.save(ctx, Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Session) save(ctx context.Context, t Tokens) error {
	if err := s.store.Save(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
	return nil
}

// Logout clears both tokens locally. The in-memory session is always
// cleared; the returned error only reports a persistence failure.
func (s *Session) Logout(ctx context.Context) error {
	return s.logout(ctx)
}

func (s *Session) logout(ctx context.Context) error {
	s.mu.Lock()
	s.tokens = Tokens{}
	s.state = Anonymous
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		zap.L().Warn("auth: clear persisted tokens", zap.Error(err))
		return err
	}
	return nil
}

// TokenExpiry returns the exp claim of the current access token.
func (s *Session) TokenExpiry() (time.Time, bool, error) {
	tok := s.Bearer()
	if tok == "" {
		return time.Time{}, false, ErrNotAuthenticated
	}
	return Expiry(tok)
}
