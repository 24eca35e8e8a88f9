package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"crewdesk/internal/api"
	"crewdesk/internal/config"
	"crewdesk/internal/format"
	"crewdesk/internal/gateway"
	"crewdesk/internal/metrics"
	"crewdesk/internal/model"
	"crewdesk/internal/session"
	"crewdesk/internal/store"
	"crewdesk/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type App struct {
	ConfigDir      string
	APIURL         string
	SessionBackend string
	Format         string
	PrettyJSON     bool
	Verbose        bool
	MetricsFile    string

	// ReadPassword prompts for a secret. Defaults to a hidden terminal
	// prompt, falling back to a line from stdin.
	ReadPassword func(cmd *cobra.Command, prompt string) (string, error)
	// HTTPClient overrides the client used for backend calls.
	HTTPClient *http.Client

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	stdin    *bufio.Reader

	kv      store.KV
	sess    *session.Store
	client  *api.Client
	tasks   *tasks.Controller
	baseURL string
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "crewdesk",
		Short:        "crewdesk: startup operations console (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive dashboard
  crewdesk

  # Log in (prompts for the password)
  crewdesk login --email fay@example.com

  # Scriptable commands
  crewdesk tasks list --format table
  crewdesk tasks start <task-id>
  crewdesk contacts note <contact-id> "Called, wants a demo"
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive dashboard.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.resolve(cmd)
	}

	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		defer app.close()
		if app.MetricsFile == "" || app.registry == nil {
			return nil
		}
		if err := metrics.WriteTextfile(app.MetricsFile, app.registry); err != nil {
			return writeErr(cmd, fmt.Errorf("write metrics: %w", err))
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", envOr("CREWDESK_CONFIG_DIR", ""), "Directory for config.yaml and the saved session (default ~/.crewdesk)")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", "", "Backend API base URL (default "+config.DefaultAPIURL+")")
	cmd.PersistentFlags().StringVar(&app.SessionBackend, "session-backend", "", "Where the session is saved (file|sqlite|memory)")
	cmd.PersistentFlags().StringVar(&app.Format, "format", "", "Output format (json|table)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Debug logging on stderr")
	cmd.PersistentFlags().StringVar(&app.MetricsFile, "metrics-file", envOr("CREWDESK_METRICS_FILE", ""), "Write request metrics to this file (Prometheus text format) on exit")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newHealthCmd(app))
	cmd.AddCommand(newPasswordCmd(app))
	cmd.AddCommand(newTeamCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newContactsCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

// resolve layers config: defaults, config.yaml, environment, then flags the
// user actually set.
func (app *App) resolve(cmd *cobra.Command) error {
	if strings.TrimSpace(app.ConfigDir) == "" {
		d, err := store.ConfigDir()
		if err != nil {
			return writeErr(cmd, err)
		}
		app.ConfigDir = d
	}
	cfg, err := config.Load(app.ConfigDir)
	if err != nil {
		return writeErr(cmd, err)
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = app.APIURL
	}
	if flags.Changed("session-backend") {
		cfg.SessionBackend = store.Backend(app.SessionBackend)
	}
	if flags.Changed("format") {
		cfg.Format = app.Format
	}
	if app.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg
	app.APIURL = cfg.APIURL
	app.SessionBackend = string(cfg.SessionBackend)
	app.Format = cfg.Format

	level, _ := config.ParseLevel(cfg.LogLevel)
	app.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	app.registry = prometheus.NewRegistry()
	return nil
}

// open builds the session/gateway/client stack and restores any saved
// session. Commands call it before touching the backend.
func (app *App) open(ctx context.Context) error {
	if app.client != nil {
		return nil
	}
	kv, err := store.Open(ctx, app.cfg.SessionBackend, app.ConfigDir)
	if err != nil {
		return err
	}
	sess := session.New(kv, app.logger)

	var limiter *rate.Limiter
	if r := app.cfg.RateLimit; r > 0 {
		burst := int(r)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	gw, err := gateway.New(gateway.Options{
		BaseURL:     app.cfg.APIURL,
		HTTPClient:  app.HTTPClient,
		Credentials: sess,
		Teardown:    sess.ForceLogout,
		Limiter:     limiter,
		Metrics:     metrics.NewCollector(app.registry),
		Logger:      app.logger,
	})
	if err != nil {
		closeKV(kv)
		return err
	}
	client := api.New(gw)
	sess.SetBackend(client)
	sess.Restore(ctx)

	app.kv = kv
	app.sess = sess
	app.client = client
	app.tasks = tasks.NewController(client, app.logger)
	app.baseURL = gw.BaseURL()
	return nil
}

func (app *App) close() {
	if app.kv != nil {
		closeKV(app.kv)
		app.kv = nil
	}
}

func closeKV(kv store.KV) {
	if c, ok := kv.(io.Closer); ok {
		_ = c.Close()
	}
}

// identity opens the stack and returns the active identity, or errNotLoggedIn.
func (app *App) identity(ctx context.Context) (*model.Identity, error) {
	if err := app.open(ctx); err != nil {
		return nil, err
	}
	id := app.sess.Current()
	if id == nil {
		return nil, errNotLoggedIn
	}
	return id, nil
}

func (app *App) readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if app.ReadPassword != nil {
		return app.ReadPassword(cmd, prompt)
	}
	return promptPassword(cmd, app, prompt)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
