package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/sites"
)

// newLinksCmd creates the 'links' subcommand, which renders the curated link
// directory with missing names and descriptions filled in.
func newLinksCmd() *cobra.Command {
	var file, out string
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Enrich the curated link directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if file == "" {
				file = appInstance.Config().Sites.File
			}
			categories, err := sites.Load(file)
			if err != nil {
				return fmt.Errorf("load sites: %w", err)
			}
			sections, err := appInstance.Enrich(cmd.Context(), categories)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						appInstance.Logger().Warn("close output", zap.Error(cerr))
					}
				}()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(sections); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "sites YAML file (defaults to sites.file)")
	cmd.Flags().StringVar(&out, "out", "", "write JSON to this file instead of stdout")
	return cmd
}
