package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/orun/internal/cliutil"
	"github.com/Paintersrp/orun/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with run profiles",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	cmd.AddCommand(newConfigShowCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate a run profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *ctx.profileFile
			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			return nil
		},
	}
}

func newConfigShowCmd(ctx *context) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective profile after extends, env files and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := ctx.loadProfile(cmd)
			if err != nil {
				return err
			}
			shown := *profile
			if !reveal {
				shown.Env = cliutil.RedactEnv(profile.Env)
			}
			out, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			w := cmd.OutOrStdout()
			if profile.Path != "" {
				fmt.Fprintf(w, "# source: %s\n", profile.Path)
			} else {
				fmt.Fprintln(w, "# source: built-in defaults")
			}
			_, err = w.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret-looking env values instead of masking them")
	return cmd
}
