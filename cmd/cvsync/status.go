package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/migrate"
	"github.com/resumely/cvsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "session",
	Short:   "Show sync state and document summary",
	Long: `Display the session identity, whether local edits are waiting to be pushed,
when the document was last synced and how many entries each section holds.

Pending edits from an earlier run are pushed before the status is printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if err := s.Sync.Flush(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s push failed: %v\n", ui.RenderWarn("⚠"), err)
			}
			st := s.Status()
			st.Now = time.Now()
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderStatus(st))

			others, err := s.PendingElsewhere(ctx)
			if err != nil {
				return err
			}
			if len(others) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s unsynced edits also held for: %s\n",
					ui.RenderWarn("⚠"), strings.Join(others, ", "))
			}
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "session",
	Short:   "Push the legacy single-file CV to the remote store",
	Long: `Migrate the CV saved by the old single-file editor into the remote store.

Migration runs automatically when a session starts; this command runs it on
its own and reports the outcome. It is idempotent: once an identity has been
migrated, later runs do nothing. The legacy file is never modified; a
timestamped backup is created next to it before anything is pushed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(flushTimeout)

		res, err := s.Migrator.RunWithOptions(ctx, s.Identity.Subject, migrate.Options{
			DryRun: dryRun,
			Backup: !noBackup && s.Config.Legacy.Backup,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case res.Skipped:
			fmt.Fprintf(out, "%s %s already migrated\n", ui.RenderPass("✓"), res.Identity)
		case res.Empty:
			fmt.Fprintf(out, "%s no legacy CV content to migrate\n", ui.RenderMuted("–"))
		case res.DryRun:
			fmt.Fprintf(out, "%s would push legacy CV (format %s) for %s\n", ui.RenderAccent("→"), res.LegacyVersion, res.Identity)
		case res.Pushed:
			fmt.Fprintf(out, "%s pushed legacy CV for %s\n", ui.RenderPass("✓"), res.Identity)
			if res.BackupCreated != "" {
				fmt.Fprintf(out, "   Backup: %s\n", res.BackupCreated)
			}
		}
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:     "discard",
	GroupID: "session",
	Short:   "Drop unsynced local edits and reload the remote CV",
	Long: `Throw away edits that have not been pushed yet and reload the CV from the
remote store. Asks for confirmation in a terminal unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		// Not started: starting would arm a push of the very edits being dropped.
		defer s.Close(flushTimeout)

		state, err := s.Local.LoadStateContext(ctx, s.Identity.Subject)
		if err != nil {
			return err
		}
		if state == nil || !state.Meta.IsDirty {
			fmt.Fprintf(cmd.OutOrStdout(), "%s nothing to discard\n", ui.RenderMuted("–"))
			return nil
		}

		if !force {
			if !ui.IsTerminal(os.Stdin) {
				return fmt.Errorf("unsynced edits would be lost; re-run with --force")
			}
			ok, err := ui.ConfirmDiscard(ctx, ui.FormOptions{})
			if err != nil && !errors.Is(err, ui.ErrAborted) {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Kept local edits.")
				return nil
			}
		}

		if err := s.Discard(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s local edits discarded\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	discardCmd.Flags().BoolP("force", "f", false, "do not ask for confirmation")
	migrateCmd.Flags().Bool("dry-run", false, "report what would be migrated without pushing")
	migrateCmd.Flags().Bool("no-backup", false, "skip the legacy file backup")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(discardCmd)
}
