// Command simplestruct rebuilds and inspects report tables from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/simplestruct/internal/application"
	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/core"
	_ "github.com/JonMunkholm/simplestruct/internal/core/tables" // Register all reports
	"github.com/JonMunkholm/simplestruct/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// exitFailure is the exit status for a run that started but failed.
const exitFailure = 2

// errRunFailed marks a run that finished unsuccessfully.
var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errRunFailed) {
			os.Exit(exitFailure)
		}
		os.Exit(1)
	}
}

// app holds the state shared by subcommands once the root command has
// loaded configuration.
type app struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "simplestruct",
		Short:         "Rebuild flat report tables from the content graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	root.AddCommand(
		newReportsCmd(a),
		newRunCmd(a),
		newResetCmd(a),
		newSeedCmd(a),
		newVocabCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

// service opens the configured backend and returns a service over it. The
// caller must Close the backend.
func (a *app) service(ctx context.Context) (*core.Service, *application.Backend, error) {
	b, err := application.Open(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := application.NewService(ctx, a.cfg, b)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return svc, b, nil
}
