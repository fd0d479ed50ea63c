package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/export"
	"github.com/resumely/cvsync/internal/types"
	"github.com/resumely/cvsync/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "edit",
	Short:   "Replace the CV with the contents of a JSON or YAML file",
	Long: `Replace the whole CV document with the contents of a file. Visibility and the
selected template are kept. Entries without an id are given one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := types.ReadDocumentFile(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			s.Store.ReplaceDocument(*doc)
			fmt.Fprintf(cmd.OutOrStdout(), "%s imported %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "edit",
	Short:   "Export the rendered CV as a PDF",
	Long: `Render the current CV and convert it into a PDF named after the profile,
for example Ada_Lovelace_CV.pdf.

Requires render.url and export.converter_url to be configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Export.Dir
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			res, err := s.Export(ctx, dir)
			if err != nil {
				var exportErr *export.ExportError
				if errors.As(err, &exportErr) {
					return errors.New(exportErr.Message)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s exported %s (%d bytes)\n", ui.RenderPass("✓"), res.Path, res.Size)
			if n := len(res.Styles.External); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "   %d external stylesheets inlined\n", n)
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:     "show",
	GroupID: "edit",
	Short:   "Print the CV document",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "yaml" && format != "json" {
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			doc := s.Store.Document()
			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		})
	},
}

func init() {
	exportCmd.Flags().String("dir", "", "output directory (default: export.dir)")
	showCmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")

	rootCmd.AddCommand(importCmd, exportCmd, showCmd)
}
