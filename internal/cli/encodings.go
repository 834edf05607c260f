package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/orun/internal/textenc"
)

func newEncodingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encodings [name...]",
		Short: "Show the preferred encoding and check encoding names",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "preferred: %s\n", textenc.PreferredEncoding(os.Getenv))

			var unusable []error
			for _, name := range args {
				if _, err := textenc.New(name, textenc.PolicyReplace); err != nil {
					reason := "unknown"
					if errors.Is(err, textenc.ErrNotLineOriented) {
						reason = "not line oriented"
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", name, reason)
					unusable = append(unusable, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", name)
			}
			if len(unusable) > 0 {
				return fmt.Errorf("%d unusable encoding(s): %w", len(unusable), errors.Join(unusable...))
			}
			return nil
		},
	}
}
