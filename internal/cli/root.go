package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/orun/internal/config"
	"github.com/Paintersrp/orun/internal/runner"
	"github.com/Paintersrp/orun/internal/runner/docker"
)

// defaultProfile is loaded from the working directory when it exists and no
// profile was named.
const defaultProfile = "orun.yaml"

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	overrides := overridesFromEnv()
	profileFile := defaultProfile
	if overrides.Config != "" {
		profileFile = overrides.Config
	}

	root := &cobra.Command{
		Use:   "orun",
		Short: "Run a command while streaming and capturing its output",
	}
	root.PersistentFlags().
		StringVarP(&profileFile, "file", "f", profileFile, "Path to the run profile (env ORUN_CONFIG)")

	ctx := &context{
		profileFile: &profileFile,
		overrides:   overrides,
		backends:    defaultBackends,
	}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newEncodingsCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. A child's return code becomes the exit
// status of orun.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		stop()
		os.Exit(exitErr.Status())
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// ExitError carries a child's non-zero return code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Status is Code clamped to a valid process exit status. Codes the OS cannot
// report, such as -1 for a signalled child, become 1.
func (e *ExitError) Status() int {
	if e.Code < 1 || e.Code > 255 {
		return 1
	}
	return e.Code
}

type context struct {
	profileFile *string
	overrides   envOverrides
	backends    func(config.BackendSpec) runner.Registry
}

// loadProfile reads the named profile. Without an explicit name a missing
// orun.yaml falls back to built-in defaults.
func (c *context) loadProfile(cmd *cobra.Command) (*config.Profile, error) {
	path := *c.profileFile
	explicit := c.overrides.Config != ""
	if flag := cmd.Flags().Lookup("file"); flag != nil && flag.Changed {
		explicit = true
	}
	if !explicit && path == defaultProfile {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func defaultBackends(spec config.BackendSpec) runner.Registry {
	dockerBackend := docker.New(spec.Container)
	dockerBackend.User = spec.User
	return runner.Registry{
		config.BackendLocal:  runner.LocalBackend{},
		config.BackendDocker: dockerBackend,
	}
}
