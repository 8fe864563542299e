package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

type resolveOutput struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Error       string `json:"error,omitempty"`
}

// newResolveCmd creates the 'resolve' subcommand.
func newResolveCmd() *cobra.Command {
	var refresh, debug bool
	cmd := &cobra.Command{
		Use:   "resolve <url>...",
		Short: "Resolve metadata for one or more URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var invalid []string
			outputs := make([]any, 0, len(args))
			for _, rawURL := range args {
				if err := metadata.ValidateURL(rawURL); err != nil {
					invalid = append(invalid, rawURL)
					outputs = append(outputs, resolveOutput{URL: rawURL, Error: err.Error()})
					continue
				}
				if refresh {
					appInstance.Invalidate(ctx, rawURL)
				}
				res := appInstance.ResolveDetailed(ctx, rawURL)
				appInstance.Logger().Debug("resolved", zap.String("url", rawURL), zap.String("source", string(res.Source)))
				if debug {
					outputs = append(outputs, res)
					continue
				}
				outputs = append(outputs, resolveOutput{
					URL:         rawURL,
					Title:       res.Data.Title,
					Description: res.Data.Description,
					Icon:        res.Data.Icon,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(outputs); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if len(invalid) > 0 {
				return fmt.Errorf("%w: %v", metadata.ErrInvalidURL, invalid)
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop cached entries before resolving")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the source and every provider attempt")
	return cmd
}
