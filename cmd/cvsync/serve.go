package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/preview"
	"github.com/resumely/cvsync/internal/ui"
	"github.com/resumely/cvsync/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "session",
	Short:   "Run a live preview session in the browser",
	Long: `Start a long-running session with a live preview at http://127.0.0.1:<port>.

The preview page reloads whenever a new rendering of the CV is ready and shows
the sync state. Focusing the browser window re-checks the remote store for
changes made on another device.

With --watch, a JSON or YAML file is mirrored into the session: every save of
the file replaces the CV document, so any editor can be used.

Examples:
  cvsync serve
  cvsync serve --port 9000 --watch cv.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = cfg.Preview.Port
		}
		watchPath, _ := cmd.Flags().GetString("watch")
		if watchPath == "" {
			watchPath = cfg.Watch.Path
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		srv, stop, err := startPreview(s, port)
		if err != nil {
			_ = s.Close(flushTimeout)
			return err
		}
		if err := s.Start(ctx); err != nil {
			stop()
			_ = s.Close(flushTimeout)
			return fmt.Errorf("failed to start session: %w", err)
		}

		var mirror *watch.Mirror
		if watchPath != "" {
			mirror, err = watch.NewMirror(s.Store, &watch.Config{
				Debounce:    cfg.Watch.Debounce,
				LoadInitial: true,
				Logger:      logger,
			})
			if err == nil {
				err = mirror.Start(watchPath)
			}
			if err != nil {
				stop()
				_ = s.Close(flushTimeout)
				return fmt.Errorf("failed to watch %s: %w", watchPath, err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s preview at %s\n", ui.RenderPass("✓"), ui.RenderAccent("http://"+srv.GetAddr()))
		if s.Previewer == nil {
			fmt.Fprintf(out, "%s %v\n", ui.RenderWarn("⚠"), app.ErrPreviewDisabled)
		}
		if mirror != nil {
			fmt.Fprintf(out, "   Mirroring %s\n", watchPath)
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Fprintln(out, "\nShutting down...")
		if mirror != nil {
			if err := mirror.Stop(); err != nil {
				logger.Warn("failed to stop file mirror", zap.Error(err))
			}
		}
		stop()
		if err := s.Close(flushTimeout); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s changes saved locally but not synced: %v\n", ui.RenderWarn("⚠"), err)
		}
		return nil
	},
}

// startPreview starts the preview server and routes session events to it.
// The returned stop func detaches the subscriptions and stops the server.
func startPreview(s *app.Session, port int) (*preview.Server, func(), error) {
	var handler *preview.Handler
	pcfg := &preview.Config{
		Port:    port,
		OnFocus: s.Sync.Refocus,
		Status:  func() preview.StatusData { return handler.Status() },
		Logger:  logger,
	}
	if s.Previewer != nil {
		pcfg.Artifacts = s.Previewer
	}
	srv := preview.NewServer(pcfg)
	handler = preview.NewHandler(srv, s.Store, logger)

	unsubs := []func(){s.Sync.Subscribe(handler.OnSyncEvent)}
	if s.Previewer != nil {
		unsubs = append(unsubs, s.Previewer.Subscribe(handler.OnRenderUpdate))
	}
	detach := func() {
		for _, fn := range unsubs {
			fn()
		}
	}

	if err := srv.Start(); err != nil {
		detach()
		return nil, nil, err
	}
	return srv, func() {
		detach()
		if err := srv.Stop(); err != nil {
			logger.Warn("failed to stop preview server", zap.Error(err))
		}
	}, nil
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8765, "port to listen on (default: preview.port)")
	serveCmd.Flags().String("watch", "", "JSON or YAML file to mirror into the session")

	rootCmd.AddCommand(serveCmd)
}
