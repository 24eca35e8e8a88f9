package cli

import (
	"context"
	"os"
	"path/filepath"

	"crewdesk/internal/model"
	"crewdesk/internal/perm"

	"github.com/spf13/cobra"
)

func newTeamCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Team member commands (founders only)",
	}
	cmd.AddCommand(newTeamListCmd(app))
	cmd.AddCommand(newTeamProvisionCmd(app))
	cmd.AddCommand(newTeamUpdateCmd(app))
	cmd.AddCommand(newTeamRemoveCmd(app))
	cmd.AddCommand(newTeamCredentialsCmd(app))
	return cmd
}

// authorize returns the active identity when it holds c.
func (app *App) authorize(cmd *cobra.Command, c perm.Capability) (*model.Identity, error) {
	id, err := app.identity(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := perm.Require(id, c); err != nil {
		return nil, err
	}
	return id, nil
}

func newTeamListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.TeamView); err != nil {
				return writeErr(cmd, err)
			}
			team, err := app.client.Team(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if app.Format == "table" {
				return writeOut(cmd, app, teamTable(team))
			}
			return writeOut(cmd, app, map[string]any{"data": team})
		},
	}
}

func newTeamProvisionCmd(app *App) *cobra.Command {
	var name, email, password, saveDir string
	var save bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a team member account and print its generated password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.authorize(cmd, perm.TeamProvision); err != nil {
				return writeErr(cmd, err)
			}
			pm, err := app.client.ProvisionTeamMember(ctx, model.ProvisionInput{Name: name, Email: email, Password: password})
			if err != nil {
				return writeErr(cmd, err)
			}
			out := map[string]any{"data": pm}
			if save {
				path, err := saveCredentials(ctx, app, pm.User, pm.GeneratedPassword, saveDir)
				if err != nil {
					return writeErr(cmd, err)
				}
				out["meta"] = map[string]any{"credentialsFile": path}
			}
			return writeOut(cmd, app, out)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (generated by the backend when omitted)")
	cmd.Flags().BoolVar(&save, "save-credentials", false, "Download the credentials sheet after provisioning")
	cmd.Flags().StringVar(&saveDir, "out-dir", ".", "Directory for --save-credentials")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTeamUpdateCmd(app *App) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "update <member-id>",
		Short: "Change a team member's name or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.TeamEdit); err != nil {
				return writeErr(cmd, err)
			}
			var patch model.TeamMemberPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("email") {
				patch.Email = &email
			}
			m, err := app.client.UpdateTeamMember(cmd.Context(), args[0], patch)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": m})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&email, "email", "", "New email")
	return cmd
}

func newTeamRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <member-id>",
		Short: "Delete a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.TeamDelete); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.client.DeleteTeamMember(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": args[0], "deleted": true}})
		},
	}
}

func newTeamCredentialsCmd(app *App) *cobra.Command {
	var generated, outDir string

	cmd := &cobra.Command{
		Use:   "credentials <member-id>",
		Short: "Download a team member's credentials sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.authorize(cmd, perm.TeamProvision); err != nil {
				return writeErr(cmd, err)
			}
			team, err := app.client.Team(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			var member *model.Identity
			for i := range team {
				if team[i].ID == args[0] {
					member = &team[i]
					break
				}
			}
			if member == nil {
				return writeErr(cmd, errUsage("team member not found: %s", args[0]))
			}
			path, err := saveCredentials(ctx, app, *member, generated, outDir)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": member.ID, "path": path}})
		},
	}

	cmd.Flags().StringVar(&generated, "generated-password", "", "Password returned by `team provision`")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to write the file to")
	_ = cmd.MarkFlagRequired("generated-password")
	return cmd
}

func saveCredentials(ctx context.Context, app *App, member model.Identity, generated, dir string) (string, error) {
	f, err := app.client.DownloadCredentials(ctx, member, generated)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, f.Filename)
	if err := os.WriteFile(path, f.Content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
