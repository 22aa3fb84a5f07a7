package auth

import (
	"regexp"
	"strings"
)

// Form field names, in display order.
const (
	FieldEmail           = "email"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
)

var fieldOrder = []string{FieldEmail, FieldUsername, FieldPassword, FieldConfirmPassword}

var (
	emailRe    = regexp.MustCompile(`\S+@\S+\.\S+`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	lowerRe    = regexp.MustCompile(`[a-z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

// ValidationError holds one message per invalid field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range fieldOrder {
		if m, ok := e.Fields[f]; ok {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the form and returns a *ValidationError when any field
// is invalid. Each field reports only its first failing rule.
func (in RegisterInput) Validate() error {
	fields := make(map[string]string)

	switch {
	case in.Email == "":
		fields[FieldEmail] = "Email is required"
	case !emailRe.MatchString(in.Email):
		fields[FieldEmail] = "Email is invalid"
	}

	switch {
	case in.Username == "":
		fields[FieldUsername] = "Username is required"
	case len(in.Username) < 3:
		fields[FieldUsername] = "Username must be at least 3 characters"
	case !usernameRe.MatchString(in.Username):
		fields[FieldUsername] = "Username can only contain letters, numbers, underscores, and hyphens"
	}

	switch {
	case in.Password == "":
		fields[FieldPassword] = "Password is required"
	case len(in.Password) < 8:
		fields[FieldPassword] = "Password must be at least 8 characters"
	case !upperRe.MatchString(in.Password):
		fields[FieldPassword] = "Password must contain at least one uppercase letter"
	case !lowerRe.MatchString(in.Password):
		fields[FieldPassword] = "Password must contain at least one lowercase letter"
	case !digitRe.MatchString(in.Password):
		fields[FieldPassword] = "Password must contain at least one number"
	}

	if in.Password != in.ConfirmPassword {
		fields[FieldConfirmPassword] = "Passwords do not match"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
