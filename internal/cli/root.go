// Package cli provides the command-line interface for LeapExplore.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/internal/cli/commands"
	"github.com/leapstack-labs/leapexplore/internal/cli/config"

	// Register the bundled datasource adapters.
	_ "github.com/leapstack-labs/leapexplore/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapexplore/pkg/adapters/postgres"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapexplore",
		Short: "LeapExplore - ad-hoc SQL exploration",
		Long: `LeapExplore runs ad-hoc SQL against DuckDB and PostgreSQL datasources.

Queries run in explore panes bound to a datasource and a time range. Every
successful run is recorded in a searchable rich history that can be starred,
commented and cleaned up from the CLI or the web UI.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go, DuckDB and PostgreSQL
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapexplore.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json|csv|md)")
	rootCmd.PersistentFlags().Int64("org", 0, "Organization id")
	rootCmd.PersistentFlags().String("login", "", "User login recorded with sessions")
	rootCmd.PersistentFlags().String("history", "", "Path to the rich history database")
	rootCmd.PersistentFlags().String("provisioning-dir", "", "Directory of datasource provisioning files")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewDatasourcesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LeapExplore.

To load completions:

Bash:
  $ source <(leapexplore completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapexplore completion bash > /etc/bash_completion.d/leapexplore
  # macOS:
  $ leapexplore completion bash > $(brew --prefix)/etc/bash_completion.d/leapexplore

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ leapexplore completion zsh > "${fpath[1]}/_leapexplore"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapexplore completion fish | source

  # To load completions for each session, execute once:
  $ leapexplore completion fish > ~/.config/fish/completions/leapexplore.fish

PowerShell:
  PS> leapexplore completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> leapexplore completion powershell > leapexplore.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
