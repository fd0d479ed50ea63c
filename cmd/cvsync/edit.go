package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/types"
	"github.com/resumely/cvsync/internal/ui"
)

var setCmd = &cobra.Command{
	Use:     "set <field> <value>",
	GroupID: "edit",
	Short:   "Set a profile field",
	Long: `Set one profile field. Fields: firstName, lastName, headline, email, phone,
location, website, linkedin, github.

Example:
  cvsync set headline "Staff Engineer"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if err := s.Store.SetProfileField(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s updated\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:     "summary <text>",
	GroupID: "edit",
	Short:   "Replace the summary paragraph",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			s.Store.SetSummary(strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s summary updated\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:     "toggle <section>",
	GroupID: "edit",
	Short:   "Show or hide an optional section",
	Long: `Flip the visibility of a section. Hidden sections keep their content but are
left out of the preview and exported file.

Sections: summary, work, education, projects, skills, interests, references.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := parseSection(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			visible := s.Store.ToggleVisibility(sec)
			state := ui.RenderMuted("hidden")
			if visible {
				state = ui.RenderPass("shown")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", sec, state)
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <section> <id>",
	GroupID: "edit",
	Short:   "Remove a list entry",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := parseListSection(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if !s.Store.RemoveEntry(sec, args[1]) {
				return fmt.Errorf("no %s entry with id %q", sec, args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", ui.RenderPass("✓"), args[1])
			return nil
		})
	},
}

var moveCmd = &cobra.Command{
	Use:     "move <section> <id> <position>",
	GroupID: "edit",
	Short:   "Move a list entry to a new position (0-based)",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := parseListSection(args[0])
		if err != nil {
			return err
		}
		pos, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[2])
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if !s.Store.MoveEntry(sec, args[1], pos) {
				return fmt.Errorf("no %s entry with id %q, or it is already there", sec, args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s moved %s\n", ui.RenderPass("✓"), args[1])
			return nil
		})
	},
}

var templateCmd = &cobra.Command{
	Use:     "template",
	GroupID: "edit",
	Short:   "List or select CV templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			current := s.Templates.Resolve(s.Store.TemplateID())
			out := cmd.OutOrStdout()
			for _, t := range s.Templates.List() {
				mark := "  "
				if t.ID == current {
					mark = ui.RenderPass("● ")
				}
				fmt.Fprintf(out, "%s%-10s %s\n", mark, t.ID, ui.RenderMuted(t.Description))
			}
			return nil
		})
	},
}

var templateSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Select the template used for preview and export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if err := s.SetTemplate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s template set to %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:     "edit",
	GroupID: "edit",
	Short:   "Edit parts of the CV interactively",
}

var editProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Edit the profile in an interactive form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsTerminal(os.Stdin) {
			return fmt.Errorf("edit profile needs an interactive terminal; use 'cvsync set' instead")
		}
		accessible, _ := cmd.Flags().GetBool("accessible")
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			edited, err := ui.EditProfile(ctx, s.Store.Document().Profile, ui.FormOptions{Accessible: accessible})
			if errors.Is(err, ui.ErrAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes made.")
				return nil
			}
			if err != nil {
				return err
			}
			s.Store.UpdateProfile(func(p *types.Profile) { *p = edited })
			fmt.Fprintf(cmd.OutOrStdout(), "%s profile updated\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

func parseSection(s string) (types.Section, error) {
	sec, ok := types.ParseSection(s)
	if !ok {
		return "", fmt.Errorf("unknown section %q", s)
	}
	return sec, nil
}

func parseListSection(s string) (types.Section, error) {
	sec, err := parseSection(s)
	if err != nil {
		return "", err
	}
	if !sec.IsList() {
		return "", fmt.Errorf("%s is not a list section", sec)
	}
	return sec, nil
}

func init() {
	editProfileCmd.Flags().Bool("accessible", false, "use plain prompts instead of the full-screen form")

	templateCmd.AddCommand(templateListCmd, templateSetCmd)
	editCmd.AddCommand(editProfileCmd)

	rootCmd.AddCommand(setCmd, summaryCmd, toggleCmd, removeCmd, moveCmd, templateCmd, editCmd)
}
