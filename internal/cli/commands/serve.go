package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/internal/ui"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port int
	Open bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"ui"},
		Short:   "Start the LeapExplore HTTP server",
		Long: `Start the HTTP server publishing explore panes over server-sent events.

Each browser session owns its own explore panes. Pane state, rich history and
the datasource list are streamed as signals, and changes to the provisioning
directory reload the datasources without a restart.`,
		Example: `  # Start on the configured port (default 8765)
  leapexplore serve

  # Start on a custom port and open the browser
  leapexplore serve --port 3000 --open`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: server.port)")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the browser (default: server.auto_open)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger

	// CLI flags override config file
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = opts.Port
	}
	autoOpen := cfg.Server.AutoOpen
	if cmd.Flags().Changed("open") {
		autoOpen = opts.Open
	}

	secret := cfg.Server.SessionSecret
	if secret == "" {
		secret = generateSessionSecret()
		logger.Warn("server.session_secret is not set, sessions will not survive a restart")
	}

	zone, err := timerange.ResolveZone(cfg.Explore.DefaultTimezone, nil)
	if err != nil {
		return err
	}

	server := ui.NewServer(ui.Config{
		Datasources:   cmdCtx.Datasources,
		History:       cmdCtx.History,
		Port:          port,
		SessionSecret: secret,
		DefaultUser: explore.UserState{
			OrgID:    cfg.OrgID,
			Login:    cfg.Login,
			TimeZone: cfg.Explore.DefaultTimezone,
		},
		CacheSize:        cfg.Explore.CacheSize,
		DefaultZone:      zone,
		ProvisioningDir:  cfg.ProvisioningDir,
		BaseDatasources:  cfg.Datasources,
		HistoryRetention: cfg.History.Retention,
		SessionIdle:      cfg.Server.SessionIdleTimeout,
		MaxSessions:      cfg.Server.MaxSessions,
		Logger:           logger,
	})

	if autoOpen && port != 0 {
		go openBrowser(fmt.Sprintf("http://localhost:%d", port))
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting LeapExplore on http://localhost:%d\n", port)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}

// generateSessionSecret returns a random secret for one server run.
func generateSessionSecret() string {
	return hex.EncodeToString(securecookie.GenerateRandomKey(32))
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(context.Background(), "open", url)
	case "linux":
		cmd = exec.CommandContext(context.Background(), "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(context.Background(), "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}

	_ = cmd.Start()
}
