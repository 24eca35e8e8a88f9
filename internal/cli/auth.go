package cli

import (
	"time"

	"crewdesk/internal/perm"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return writeErr(cmd, err)
			}
			pw, err := secret(cmd, app, password, "Password: ")
			if err != nil {
				return writeErr(cmd, err)
			}
			id, err := app.sess.Login(ctx, email, pw)
			if err != nil {
				return writeErr(cmd, err)
			}
			v := perm.SelectView(id)
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"user": id,
				"view": v.Kind,
			}})
		},
	}

	cmd.Flags().StringVar(&email, "email", envOr("CREWDESK_EMAIL", ""), "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a founder account (does not log in)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return writeErr(cmd, err)
			}
			pw, err := secret(cmd, app, password, "Password: ")
			if err != nil {
				return writeErr(cmd, err)
			}
			id, err := app.sess.Register(ctx, name, email, pw)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": id,
				"meta": map[string]any{"_hint": "account created; run `crewdesk login --email " + id.Email + "`"},
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.sess.Logout(ctx); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"loggedOut": true}})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity and what it can do",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			v := perm.SelectView(id)
			out := map[string]any{
				"user":         id,
				"view":         v.Kind,
				"tabs":         v.Tabs,
				"capabilities": v.Capabilities.Sorted(),
				"apiUrl":       app.baseURL,
			}
			if tok, ok := app.sess.Credential(); ok {
				if exp, ok := tokenExpiry(string(tok)); ok {
					out["tokenExpiresAt"] = exp.UTC().Format(time.RFC3339)
					out["tokenExpired"] = time.Now().After(exp)
				}
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

// tokenExpiry reads exp from a JWT without verifying it. It is a hint only;
// the backend decides whether the credential is still good.
func tokenExpiry(raw string) (time.Time, bool) {
	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return time.Time{}, false
	}
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return writeErr(cmd, err)
			}
			out, err := app.client.Health(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

func newPasswordCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password commands",
	}
	cmd.AddCommand(newPasswordResetCmd(app))
	return cmd
}

func newPasswordResetCmd(app *App) *cobra.Command {
	var email, current, next, confirm string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Change a password (defaults to the logged-in account)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if email == "" {
				if id := app.sess.Current(); id != nil {
					email = id.Email
				}
			}
			if email == "" {
				return writeErr(cmd, errUsage("--email is required when not logged in"))
			}

			var err error
			if current, err = secret(cmd, app, current, "Current password: "); err != nil {
				return writeErr(cmd, err)
			}
			if next, err = secret(cmd, app, next, "New password: "); err != nil {
				return writeErr(cmd, err)
			}
			if confirm, err = secret(cmd, app, confirm, "Confirm new password: "); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.client.ResetPassword(ctx, email, current, next, confirm); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"email": email, "passwordReset": true}})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (default: logged-in user)")
	cmd.Flags().StringVar(&current, "current-password", "", "Current password (prompted when omitted)")
	cmd.Flags().StringVar(&next, "new-password", "", "New password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm-password", "", "New password again (prompted when omitted)")
	return cmd
}
