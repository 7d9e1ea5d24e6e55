package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muxos/muxos-helper/pkg/color"
	"github.com/muxos/muxos-helper/pkg/elevate"
	"github.com/muxos/muxos-helper/pkg/model"
)

var (
	callHelperPath string
	callLauncher   string
	callFeature    string
	callEnabled    bool
	callRepo       string
	callRef        string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run a helper with elevated privilege",
	Long: `Send one request to a helper through the launcher (pkexec by default)
and print its response. The exit status is the helper's own.`,
}

var callSecurityCmd = &cobra.Command{
	Use:   "security",
	Short: "Call the security helper",
}

var callUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Call the update helper",
}

var callToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Enable or disable one security feature",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if callFeature == "" {
			return errors.New("--feature is required")
		}
		if err := newCaller("security").Toggle(cmd.Context(), callFeature, callEnabled); err != nil {
			return err
		}
		res := model.ToggleRequest{Feature: callFeature, Enabled: callEnabled}
		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Fprintf(stdout, "%s %s\n", color.Success("✓"), describeToggle(res))
		return nil
	},
}

var callBatchCmd = &cobra.Command{
	Use:   "batch <feature>=<true|false>...",
	Short: "Apply several toggles in one authorization",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toggles, err := parseToggles(args)
		if err != nil {
			return err
		}
		res, err := newCaller("security").Batch(cmd.Context(), toggles)
		if res == nil {
			return err
		}
		if jsonOutput {
			if jerr := outputJSON(res); jerr != nil {
				return jerr
			}
			return err
		}
		for _, r := range res.Results {
			if r.OK {
				fmt.Fprintf(stdout, "%s %v=%v\n", color.Success("✓"), r.Feature, r.Enabled)
			} else {
				fmt.Fprintf(stdout, "%s %v=%v: %s\n", color.Error("✗"), r.Feature, r.Enabled, r.Error)
			}
		}
		return err
	},
}

var callUpdateInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newCaller("update").Install(cmd.Context(), callRepo, callRef)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Fprintf(stdout, "%s installed %s (%d files)\n", color.Success("✓"), color.Header(string(res.UpdateID)), len(res.Copied))
		for _, f := range res.Copied {
			fmt.Fprintf(stdout, "  %s %s\n", f.Dst, color.Dim(string(f.SHA256)))
		}
		return nil
	},
}

var callUpdateRollbackCmd = &cobra.Command{
	Use:   "rollback <update-id>",
	Short: "Restore the files replaced by an install",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newCaller("update").Rollback(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Fprintf(stdout, "%s rolled back %s (%d files restored)\n", color.Success("✓"), color.Header(string(res.UpdateID)), len(res.Restored))
		for _, p := range res.Restored {
			fmt.Fprintf(stdout, "  %s\n", p)
		}
		return nil
	},
}

var callUpdateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installs that can be rolled back",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newCaller("update").List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		if len(res) == 0 {
			fmt.Fprintln(stdout, color.Dim("No updates installed."))
			return nil
		}
		for _, u := range res {
			ref := u.Ref
			if u.Repo != "" {
				ref = u.Repo + "@" + u.Ref
			}
			fmt.Fprintf(stdout, "%s  %-30s %d files  %s\n", color.Header(string(u.UpdateID)), ref, u.Files,
				color.Dim(u.CreatedAt.Local().Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

func newVerifyCmd(kind string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the helper's journal chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newCaller(kind).Verify(cmd.Context())
			if res == nil {
				return err
			}
			if jsonOutput {
				if jerr := outputJSON(res); jerr != nil {
					return jerr
				}
				return err
			}
			if res.OK {
				fmt.Fprintf(stdout, "%s %s journal intact (%d entries)\n", color.Success("✓"), kind, res.Entries)
			} else {
				fmt.Fprintf(stdout, "%s %s journal broken at entry %d: %s\n", color.Error("✗"), kind, res.Line, res.Error)
			}
			return err
		},
	}
}

// newCaller runs this executable as the helper unless --helper-path names
// another one. The config path is forwarded since pkexec clears the
// environment.
func newCaller(kind string) *elevate.Client {
	path := callHelperPath
	if path == "" {
		if exe, err := os.Executable(); err == nil {
			path = exe
		}
	}
	return &elevate.Client{
		Launcher:   callLauncher,
		HelperPath: path,
		Args:       []string{kind, "--config", configPath},
	}
}

// parseToggles reads feature=bool pairs.
func parseToggles(args []string) ([]model.ToggleRequest, error) {
	toggles := make([]model.ToggleRequest, 0, len(args))
	for _, arg := range args {
		feature, value, ok := strings.Cut(arg, "=")
		if !ok || feature == "" {
			return nil, fmt.Errorf("invalid toggle %q: want <feature>=<true|false>", arg)
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid toggle %q: %w", arg, err)
		}
		toggles = append(toggles, model.ToggleRequest{Feature: feature, Enabled: enabled})
	}
	return toggles, nil
}

// featureList names the catalog for help text.
func featureList() string {
	names := make([]string, 0, len(model.Features))
	for _, f := range model.Features {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}

func describeToggle(t model.ToggleRequest) string {
	if t.Enabled {
		return t.Feature + " enabled"
	}
	return t.Feature + " disabled"
}

func init() {
	callCmd.PersistentFlags().StringVar(&callHelperPath, "helper-path", "", "helper executable (default: this program)")
	callCmd.PersistentFlags().StringVar(&callLauncher, "launcher", elevate.DefaultLauncher, "privilege launcher; empty runs the helper directly")

	callToggleCmd.Flags().StringVar(&callFeature, "feature", "", "feature to toggle: "+featureList())
	callToggleCmd.Flags().BoolVar(&callEnabled, "enabled", false, "enable the feature")
	callUpdateInstallCmd.Flags().StringVar(&callRepo, "repo", "", "repository slug (default: configured repository)")
	callUpdateInstallCmd.Flags().StringVar(&callRef, "ref", "", "immutable release tag or commit")

	callSecurityCmd.AddCommand(callToggleCmd, callBatchCmd, newVerifyCmd("security"))
	callUpdateCmd.AddCommand(callUpdateInstallCmd, callUpdateRollbackCmd, callUpdateListCmd, newVerifyCmd("update"))
	callCmd.AddCommand(callSecurityCmd, callUpdateCmd)
	rootCmd.AddCommand(callCmd)
}
