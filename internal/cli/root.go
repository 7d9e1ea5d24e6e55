// Package cli implements the muxos-helper command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muxos/muxos-helper/pkg/color"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/elevate"
	"github.com/muxos/muxos-helper/pkg/errclass"
)

var (
	configPath string
	jsonOutput bool
	noColor    bool
	rootCmd    = &cobra.Command{
		Use:   "muxos-helper",
		Short: "MuxOS privileged helpers",
		Long: `muxos-helper performs the privileged system changes behind the MuxOS
settings applications: security feature toggles, release installs and
rollbacks. Every change is recorded in an HMAC-chained journal.

The security and update subcommands are the helpers themselves. They read
one JSON request on stdin and must run as root, normally through pkexec.
The call subcommand is the unprivileged side that launches them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits with the status the error maps to:
// a helper error's class status, a called helper's own status, or 1.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var silent *silentExit
	if !errors.As(err, &silent) {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var silent *silentExit
	if errors.As(err, &silent) {
		return silent.code
	}
	var exitErr *elevate.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return errclass.ExitCode(err)
}

// silentExit ends the process with code after the command already reported
// the problem itself.
type silentExit struct {
	code int
}

func (e *silentExit) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
