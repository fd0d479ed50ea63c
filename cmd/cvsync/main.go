// Command cvsync edits a CV locally and keeps it in sync with the remote
// document store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/config"
	"github.com/resumely/cvsync/internal/logging"
	"github.com/resumely/cvsync/internal/ui"
)

// flushTimeout bounds the push on exit of one-shot commands.
const flushTimeout = 10 * time.Second

var (
	configFile string
	envFile    string
	identityID string
	tokenFlag  string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	// sessionOptions lets tests inject remote services.
	sessionOptions app.Options
)

var rootCmd = &cobra.Command{
	Use:   "cvsync",
	Short: "Local-first CV editor with remote sync",
	Long: `cvsync keeps a CV document on this machine and pushes every change to the
remote document store after a short quiet period.

Edits are written to a local database first, so nothing is lost when the
network or the remote store is unavailable; pending edits are pushed on the
next run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Options{File: configFile, EnvFile: envFile})
		if err != nil {
			return err
		}
		if identityID != "" {
			cfg.Identity = identityID
		}
		if tokenFlag != "" {
			cfg.Token = tokenFlag
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		var console io.Writer
		if verbose {
			console = cmd.ErrOrStderr()
		}
		logger, err = logging.New(logging.Options{
			Level:   cfg.Log.Level,
			File:    cfg.Log.File,
			Console: console,
		})
		if err != nil {
			return err
		}
		ui.Init(cmd.OutOrStdout())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "edit", Title: "Editing:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: cvsync.yaml in . or ~/.cvsync)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env)")
	rootCmd.PersistentFlags().StringVar(&identityID, "identity", "", "session identity (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "signed session token (overrides --identity)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}

// openSession opens a session without starting it.
func openSession(ctx context.Context) (*app.Session, error) {
	opts := sessionOptions
	opts.Config = cfg
	opts.Logger = logger
	return app.Open(ctx, opts)
}

// withSession runs fn inside a started session and flushes edits on the way
// out. A failed flush leaves the edits queued locally and is reported as a
// warning, not an error.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close(flushTimeout)
		return fmt.Errorf("failed to start session: %w", err)
	}

	runErr := fn(ctx, s)
	if err := s.Close(flushTimeout); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s changes saved locally but not synced: %v\n", ui.RenderWarn("⚠"), err)
	}
	return runErr
}
