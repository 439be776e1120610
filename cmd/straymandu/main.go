package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/logging"
	"github.com/dharsanguruparan/straymandu/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "straymandu: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "straymandu",
		Short: "StrayMandu backend and operator CLI",
		Long: `straymandu runs the API and the notification worker, prepares the database, issues
development tokens, and drives the report workflow against a running API.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (default from STRAYMANDU_API_URL)")
	cmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("STRAYMANDU_TOKEN"), "Bearer token for API commands")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newReportsCmd(),
		newNotificationsCmd(),
		newLeaderboardCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

// loadRuntime reads configuration and builds the logger for commands that
// run a process.
func loadRuntime(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, service)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime("straymandu-api")
			if err != nil {
				return err
			}
			defer logger.Sync()
			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Serve(cmd.Context())
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the queued notification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime("straymandu-worker")
			if err != nil {
				return err
			}
			defer logger.Sync()
			return server.RunWorker(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreMode != config.StorePostgres {
				return fmt.Errorf("migrate needs STRAYMANDU_STORE=postgres")
			}
			pool, err := server.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pool.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var uid, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if os.Getenv("STRAYMANDU_TOKEN_SECRET") == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: STRAYMANDU_TOKEN_SECRET not set; the API will not accept this token")
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := auth.NewIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL).Issue(uid, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "User or organization id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleVolunteer), "volunteer or organization")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
