package sandbox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type user struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Level     string `json:"subscription_level"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	hash      []byte
}

type claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Username == "" || req.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email, username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Registration failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	for _, u := range s.users {
		if u.Username == req.Username {
			writeDetail(w, http.StatusBadRequest, "Username already taken")
			return
		}
	}

	u := &user{
		ID:        uuid.New().String(),
		Email:     email,
		Username:  req.Username,
		Level:     "free",
		IsActive:  true,
		CreatedAt: s.cfg.Now().Format("2006-01-02T15:04:05"),
		hash:      hash,
	}
	s.users[email] = u
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	s.issue(w, u)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := s.userFor(req.RefreshToken, tokenRefresh)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.issue(w, u)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	u, err := s.userFor(raw, tokenAccess)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) issue(w http.ResponseWriter, u *user) {
	access, err := s.sign(u, tokenAccess)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Login failed")
		return
	}
	refresh, err := s.sign(u, tokenRefresh)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

// Token builds a signed token for the user with the given email. Tests use
// it to mint expired or mistyped tokens.
func (s *Server) Token(email, typ string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[email]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("sandbox: unknown user %q", email)
	}
	return s.sign(u, typ)
}

func (s *Server) sign(u *user, typ string) (string, error) {
	ttl := s.cfg.AccessTTL
	if typ == tokenRefresh {
		ttl = s.cfg.RefreshTTL
	}
	now := s.cfg.Now()
	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
}

func (s *Server) userFor(raw, typ string) (*user, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithTimeFunc(s.cfg.Now))
	if err != nil {
		return nil, err
	}
	if c.Type != typ {
		return nil, errors.New("wrong token type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.Subject]
	if !ok || !u.IsActive {
		return nil, errors.New("unknown user")
	}
	return u, nil
}
