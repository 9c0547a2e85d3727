package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate <fixture.yaml>",
		Short:         "Report weight completeness of a gradebook tree",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runValidate(opts *RootOptions, path string, w io.Writer) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: w}
	fixture, err := loadOrReport(formatter, path)
	if err != nil {
		return err
	}

	report := service.ValidateWeights(fixture.Gradebook.Model())
	status := "ok"
	if !report.Complete {
		status = "incomplete"
	}
	if err := formatter.Emit(status, report, func(w io.Writer) { printReport(w, report) }); err != nil {
		return err
	}
	if !report.Complete {
		return &ExitError{Code: ExitFailure, Message: "gradebook weights need adjustment"}
	}
	return nil
}

func printReport(w io.Writer, report models.WeightReport) {
	for _, level := range report.Levels {
		mark := "ok"
		if level.Status != models.WeightStatusComplete {
			mark = "!!"
		}
		fmt.Fprintf(w, "[%s] %-9s %-24s %7.2f", mark, level.Level, level.Title, level.Sum)
		if level.Message != "" {
			fmt.Fprintf(w, "  %s", level.Message)
		}
		fmt.Fprintln(w)
	}
	if report.Complete {
		fmt.Fprintln(w, "All weights complete")
	} else {
		fmt.Fprintln(w, "Weights need adjustment")
	}
}
