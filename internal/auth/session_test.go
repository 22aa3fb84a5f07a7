package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi/mocks"
)

type memTokens struct {
	t        Tokens
	saves    int
	clears   int
	clearErr error
}

func (m *memTokens) Load(context.Context) (Tokens, error) { return m.t, nil }
func (m *memTokens) Save(_ context.Context, t Tokens) error {
	m.t = t
	m.saves++
	return nil
}
func (m *memTokens) Clear(context.Context) error {
	m.t = Tokens{}
	m.clears++
	return m.clearErr
}

func newSession(t *testing.T, initial Tokens) (*Session, *mocks.MockClient, *memTokens) {
	t.Helper()
	api := mocks.NewMockClient(t)
	ts := &memTokens{t: initial}
	s := NewSession(ts)
	s.Bind(api)
	require.NoError(t, s.Restore(context.Background()))
	return s, api, ts
}

var unauthorized = &leadsapi.APIError{StatusCode: 401, Body: `{"detail":"Could not validate credentials"}`, Detail: "Could not validate credentials"}

func TestLogin_Success(t *testing.T) {
	s, api, ts := newSession(t, Tokens{})
	assert.Equal(t, Anonymous, s.State())

	api.On("Login", mock.Anything, "a@b.co", "Secret123").
		Return(&leadsapi.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil)

	require.NoError(t, s.Login(context.Background(), "a@b.co", "Secret123"))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "acc", s.Bearer())
	assert.Equal(t, Tokens{AccessToken: "acc", RefreshToken: "ref"}, ts.t)
}

func TestLogin_FailureKeepsAnonymous(t *testing.T) {
	s, api, ts := newSession(t, Tokens{})

	api.On("Login", mock.Anything, "a@b.co", "wrong").
		Return(nil, &leadsapi.APIError{StatusCode: 401, Detail: "Incorrect email or password"})

	err := s.Login(context.Background(), "a@b.co", "wrong")
	require.Error(t, err)

	var ferr *FormError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Incorrect email or password", ferr.Message)
	assert.Equal(t, Anonymous, s.State())
	assert.Empty(t, s.Bearer())
	assert.Zero(t, ts.saves)
}

func TestLogin_FailureWithoutDetail(t *testing.T) {
	s, api, _ := newSession(t, Tokens{})

	api.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused"))

	err := s.Login(context.Background(), "a@b.co", "x")
	assert.EqualError(t, err, "Login failed")
}

func TestRegister_RejectsMissingUppercaseWithoutNetwork(t *testing.T) {
	s, api, _ := newSession(t, Tokens{})

	_, err := s.Register(context.Background(), RegisterInput{
		Email:           "new@example.com",
		Username:        "newbie",
		Password:        "abc12345",
		ConfirmPassword: "abc12345",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		FieldPassword: "Password must contain at least one uppercase letter",
	}, verr.Fields)
	api.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestRegister_Success(t *testing.T) {
	s, api, _ := newSession(t, Tokens{})

	req := leadsapi.RegisterRequest{Email: "new@example.com", Username: "new_bie", Password: "Abc12345"}
	api.On("Register", mock.Anything, req).
		Return(&leadsapi.User{ID: "u1", Email: req.Email, Username: req.Username}, nil)

	user, err := s.Register(context.Background(), RegisterInput{
		Email: req.Email, Username: req.Username, Password: req.Password, ConfirmPassword: req.Password,
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, Anonymous, s.State())
}

func TestRegister_ServerError(t *testing.T) {
	s, api, _ := newSession(t, Tokens{})

	api.On("Register", mock.Anything, mock.Anything).
		Return(nil, &leadsapi.APIError{StatusCode: 400, Detail: "Email already registered"})

	_, err := s.Register(context.Background(), RegisterInput{
		Email: "a@b.co", Username: "abc", Password: "Abc12345", ConfirmPassword: "Abc12345",
	})
	var ferr *FormError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Email already registered", ferr.Message)
}

func TestCurrentUser_NotAuthenticated(t *testing.T) {
	s, _, _ := newSession(t, Tokens{})

	_, err := s.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCurrentUser_Success(t *testing.T) {
	s, api, _ := newSession(t, Tokens{AccessToken: "acc", RefreshToken: "ref"})
	assert.Equal(t, Authenticated, s.State())

	api.On("Me", mock.Anything).Return(&leadsapi.User{Username: "jo"}, nil).Once()

	user, err := s.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jo", user.Username)
}

func TestCurrentUser_RefreshesOnceThenRetries(t *testing.T) {
	s, api, ts := newSession(t, Tokens{AccessToken: "old", RefreshToken: "ref"})

	api.On("Me", mock.Anything).Return(nil, unauthorized).Once()
	api.On("Refresh", mock.Anything, "ref").
		Return(&leadsapi.TokenPair{AccessToken: "new", RefreshToken: "ref2"}, nil).Once()
	api.On("Me", mock.Anything).Return(&leadsapi.User{Username: "jo"}, nil).Once()

	user, err := s.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jo", user.Username)
	assert.Equal(t, "new", s.Bearer())
	assert.Equal(t, Tokens{AccessToken: "new", RefreshToken: "ref2"}, ts.t)
	api.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestCurrentUser_SecondUnauthorizedLogsOut(t *testing.T) {
	s, api, ts := newSession(t, Tokens{AccessToken: "old", RefreshToken: "ref"})

	api.On("Me", mock.Anything).Return(nil, unauthorized).Twice()
	api.On("Refresh", mock.Anything, "ref").
		Return(&leadsapi.TokenPair{AccessToken: "new", RefreshToken: "ref2"}, nil).Once()

	_, err := s.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, leadsapi.IsUnauthorized(err))
	assert.Equal(t, Anonymous, s.State())
	assert.Equal(t, Tokens{}, s.Tokens())
	assert.Equal(t, 1, ts.clears)
	api.AssertNumberOfCalls(t, "Refresh", 1)
	api.AssertNumberOfCalls(t, "Me", 2)
}

func TestCurrentUser_RefreshFailureLogsOut(t *testing.T) {
	s, api, _ := newSession(t, Tokens{AccessToken: "old", RefreshToken: "ref"})

	api.On("Me", mock.Anything).Return(nil, unauthorized).Once()
	api.On("Refresh", mock.Anything, "ref").Return(nil, unauthorized).Once()

	_, err := s.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Equal(t, Anonymous, s.State())
	assert.Empty(t, s.Bearer())
	api.AssertNumberOfCalls(t, "Me", 1)
}

func TestCurrentUser_NoRefreshToken(t *testing.T) {
	s, api, _ := newSession(t, Tokens{AccessToken: "old"})

	api.On("Me", mock.Anything).Return(nil, unauthorized).Once()

	_, err := s.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no refresh token")
	assert.Equal(t, Anonymous, s.State())
	api.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestCurrentUser_OtherErrorKeepsSession(t *testing.T) {
	s, api, _ := newSession(t, Tokens{AccessToken: "acc", RefreshToken: "ref"})

	api.On("Me", mock.Anything).Return(nil, &leadsapi.APIError{StatusCode: 500, Body: "boom"}).Once()

	_, err := s.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "acc", s.Bearer())
}

func TestLogout(t *testing.T) {
	s, _, ts := newSession(t, Tokens{AccessToken: "acc", RefreshToken: "ref"})

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, Anonymous, s.State())
	assert.Equal(t, Tokens{}, s.Tokens())
	assert.Equal(t, Tokens{}, ts.t)

	require.NoError(t, s.Logout(context.Background()))
}

func TestLogout_StoreErrorStillClearsMemory(t *testing.T) {
	s, _, ts := newSession(t, Tokens{AccessToken: "acc"})
	ts.clearErr = errors.New("disk full")

	require.Error(t, s.Logout(context.Background()))
	assert.Empty(t, s.Bearer())
	assert.Equal(t, Anonymous, s.State())
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret-we-do-not-know"))
	require.NoError(t, err)

	s, _, _ := newSession(t, Tokens{AccessToken: tok})
	got, ok, err := s.TokenExpiry()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, exp.Equal(got))
}

func TestTokenExpiry_Errors(t *testing.T) {
	s, _, _ := newSession(t, Tokens{})
	_, _, err := s.TokenExpiry()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, _, err = Expiry("not-a-jwt")
	assert.Error(t, err)
}

func TestStoreTokens_RoundTrip(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	ts := NewStoreTokens(st)
	got, err := ts.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, got)

	require.NoError(t, ts.Save(ctx, Tokens{AccessToken: "a", RefreshToken: "r"}))

	s := NewSession(ts)
	require.NoError(t, s.Restore(ctx))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "a", s.Bearer())

	require.NoError(t, s.Logout(ctx))
	got, err = ts.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, got)
}
