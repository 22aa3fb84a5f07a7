package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterInput_Validate(t *testing.T) {
	valid := RegisterInput{
		Email:           "jo@example.com",
		Username:        "jo-doe_1",
		Password:        "Abcdefg1",
		ConfirmPassword: "Abcdefg1",
	}

	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
		want  string
	}{
		{"email required", func(in *RegisterInput) { in.Email = "" }, FieldEmail, "Email is required"},
		{"email invalid", func(in *RegisterInput) { in.Email = "jo@example" }, FieldEmail, "Email is invalid"},
		{"username required", func(in *RegisterInput) { in.Username = "" }, FieldUsername, "Username is required"},
		{"username short", func(in *RegisterInput) { in.Username = "jo" }, FieldUsername, "Username must be at least 3 characters"},
		{"username charset", func(in *RegisterInput) { in.Username = "jo doe" }, FieldUsername, "Username can only contain letters, numbers, underscores, and hyphens"},
		{"password required", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "", "" }, FieldPassword, "Password is required"},
		{"password short", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "Ab1", "Ab1" }, FieldPassword, "Password must be at least 8 characters"},
		{"password upper", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc12345", "abc12345" }, FieldPassword, "Password must contain at least one uppercase letter"},
		{"password lower", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "ABC12345", "ABC12345" }, FieldPassword, "Password must contain at least one lowercase letter"},
		{"password digit", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "Abcdefgh", "Abcdefgh" }, FieldPassword, "Password must contain at least one number"},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "Abcdefg2" }, FieldConfirmPassword, "Passwords do not match"},
	}

	require.NoError(t, valid.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.edit(&in)

			err := in.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, map[string]string{tt.field: tt.want}, verr.Fields)
		})
	}
}

func TestValidationError_MessageOrder(t *testing.T) {
	err := RegisterInput{Password: "x", ConfirmPassword: "y"}.Validate()
	require.Error(t, err)
	assert.Equal(t,
		"Email is required; Username is required; Password must be at least 8 characters; Passwords do not match",
		err.Error())
}
