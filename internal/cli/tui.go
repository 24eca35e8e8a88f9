package cli

import (
	"crewdesk/internal/dashboard"
	"crewdesk/internal/tui"

	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	if err := app.open(ctx); err != nil {
		return writeErr(cmd, err)
	}
	return tui.Run(ctx, tui.Deps{
		Session: app.sess,
		Tasks:   app.tasks,
		Notes:   app.client,
		Loader:  dashboard.NewLoader(app.client, app.logger),
		Logger:  app.logger,
	})
}
