package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/muxos/muxos-helper/internal/doctor"
	"github.com/muxos/muxos-helper/pkg/color"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check helper state for problems",
	Long: `Check journals, keys, update state files and security scripts.

Exits 1 when a critical or error finding is reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := doctor.NewDoctor(afero.NewOsFs(), cfg).Check()
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else {
			printDoctorResult(result)
		}

		if !result.Healthy {
			return &silentExit{code: 1}
		}
		return nil
	},
}

func printDoctorResult(result *doctor.Result) {
	if result.Healthy {
		fmt.Fprintln(stdout, color.Success("Helper state is healthy."))
	} else {
		fmt.Fprintln(stdout, color.Error("Helper state has issues:"))
	}
	for _, f := range result.Findings {
		fmt.Fprintf(stdout, "  [%s] %s: %s\n", color.Severity(f.Severity), f.Category, f.Description)
		if f.Path != "" {
			fmt.Fprintf(stdout, "         %s\n", color.Dim(f.Path))
		}
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
