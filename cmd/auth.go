package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Log in, register and inspect the saved session",
}

// readPassword returns the --password flag, or one line from stdin when
// --password-stdin is set.
func readPassword(cmd *cobra.Command, in io.Reader) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if !fromStdin {
		return pw, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", eris.Wrap(err, "read password from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// -- auth login --

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the token pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		password, err := readPassword(cmd, os.Stdin)
		if err != nil {
			return err
		}

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Session.Login(ctx, email, password); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Logged in as %s\n", email)
		return nil
	},
}

// -- auth register --

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		confirm, _ := cmd.Flags().GetString("confirm-password")
		password, err := readPassword(cmd, os.Stdin)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("confirm-password") {
			confirm = password
		}

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		user, err := env.Session.Register(ctx, auth.RegisterInput{
			Email:           email,
			Username:        username,
			Password:        password,
			ConfirmPassword: confirm,
		})
		if err != nil {
			var verr *auth.ValidationError
			if errors.As(err, &verr) {
				formatValidation(os.Stderr, verr)
				return eris.New("registration form is invalid")
			}
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Registered %s (%s). Log in with: leadgen auth login --email %s\n",
			user.Username, user.Email, user.Email)
		return nil
	},
}

// -- auth me --

var authMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		user, err := env.Session.CurrentUser(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrNotAuthenticated) || leadsapi.IsUnauthorized(err) {
				return eris.New("Not authenticated. Run: leadgen auth login")
			}
			return errorBanner("Failed to load user", err)
		}
		formatUser(os.Stdout, user)
		return nil
	},
}

// -- auth logout --

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved tokens",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Session.Logout(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, "Logged out.")
		return nil
	},
}

// -- auth status --

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session without calling the API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		formatSession(os.Stdout, env.Session, time.Now())
		return nil
	},
}

func formatValidation(out io.Writer, verr *auth.ValidationError) {
	for _, f := range []string{auth.FieldEmail, auth.FieldUsername, auth.FieldPassword, auth.FieldConfirmPassword} {
		if msg, ok := verr.Fields[f]; ok {
			_, _ = fmt.Fprintf(out, "%s: %s\n", f, msg)
		}
	}
}

func formatUser(out io.Writer, u *leadsapi.User) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	_, _ = fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	_, _ = fmt.Fprintf(w, "Username:\t%s\n", u.Username)
	if u.SubscriptionLevel != "" {
		_, _ = fmt.Fprintf(w, "Plan:\t%s\n", u.SubscriptionLevel)
	}
	_, _ = fmt.Fprintf(w, "Active:\t%t\n", u.IsActive)
	_ = w.Flush()
}

func formatSession(out io.Writer, sess *auth.Session, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", sess.State())
	if exp, ok, err := sess.TokenExpiry(); err == nil && ok {
		left := exp.Sub(now).Round(time.Second)
		if left > 0 {
			_, _ = fmt.Fprintf(w, "Access token expires:\t%s (in %s)\n", exp.Local().Format(time.DateTime), left)
		} else {
			_, _ = fmt.Fprintf(w, "Access token expired:\t%s\n", exp.Local().Format(time.DateTime))
		}
	}
	_, _ = fmt.Fprintf(w, "Refresh token:\t%t\n", sess.Tokens().RefreshToken != "")
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{authLoginCmd, authRegisterCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password")
		c.Flags().Bool("password-stdin", false, "read the password from stdin")
		_ = c.MarkFlagRequired("email")
	}
	authRegisterCmd.Flags().String("username", "", "user name (letters, digits, - and _)")
	authRegisterCmd.Flags().String("confirm-password", "", "password confirmation (defaults to --password)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authMeCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
