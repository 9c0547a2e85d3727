package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
)

// StudentResult is the computed grade sheet line of one student.
type StudentResult struct {
	EnrollmentID string             `json:"enrollment_id"`
	Name         string             `json:"name"`
	PeriodGrades map[string]float64 `json:"period_grades"`
	FinalGrade   float64            `json:"final_grade"`
	Passed       bool               `json:"passed"`
	Issues       []string           `json:"issues,omitempty"`
}

// ComputeResult is the output of the compute command.
type ComputeResult struct {
	GradebookID  string          `json:"gradebook_id"`
	PassingGrade float64         `json:"passing_grade"`
	Students     []StudentResult `json:"students"`
}

// NewComputeCommand creates the compute command.
func NewComputeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compute <fixture.yaml>",
		Short: "Compute period and final grades from fixture scores",
		Long: `Compute the recommended period grade of every student and the final grade
from those period grades, treating every period as posted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runCompute(opts *RootOptions, path string, w io.Writer) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: w}
	fixture, err := loadOrReport(formatter, path)
	if err != nil {
		return err
	}

	passing := opts.PassingGrade
	if passing <= 0 || passing > 100 {
		passing = 75
	}
	result := Compute(fixture, passing)

	issues := 0
	for _, s := range result.Students {
		issues += len(s.Issues)
	}
	status := "ok"
	if issues > 0 {
		status = "issues"
	}
	if err := formatter.Emit(status, result, func(w io.Writer) { printResult(w, fixture.Gradebook.Model(), result) }); err != nil {
		return err
	}
	if issues > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d score issue(s)", issues)}
	}
	return nil
}

// Compute grades every student of the fixture.
func Compute(fixture *Fixture, passing float64) ComputeResult {
	gradebook := fixture.Gradebook.Model()
	details := gradebook.DetailIndex()
	result := ComputeResult{GradebookID: gradebook.ID, PassingGrade: passing}

	for _, student := range fixture.Students {
		line := StudentResult{
			EnrollmentID: student.EnrollmentID,
			Name:         student.Name,
			PeriodGrades: make(map[string]float64, len(gradebook.Periods)),
		}

		ids := make([]string, 0, len(student.Scores))
		for id := range student.Scores {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			ref, ok := details[id]
			switch {
			case !ok:
				line.Issues = append(line.Issues, fmt.Sprintf("unknown detail %s", id))
			case !ref.Detail.InRange(student.Scores[id]):
				line.Issues = append(line.Issues, fmt.Sprintf("score %.2f for %s outside [%.2f, %.2f]",
					student.Scores[id], ref.Detail.Title, ref.Detail.MinScore, ref.Detail.MaxScore))
			}
		}

		for _, period := range gradebook.Periods {
			line.PeriodGrades[period.ID] = service.ComputePeriodGrade(period, student.Scores)
		}
		line.FinalGrade = service.ComputeFinalGrade(gradebook.Periods, line.PeriodGrades)
		line.Passed = service.MeetsPassingGrade(line.FinalGrade, passing)
		result.Students = append(result.Students, line)
	}
	return result
}

func printResult(w io.Writer, gradebook models.Gradebook, result ComputeResult) {
	fmt.Fprintf(w, "%-12s %-20s", "Enrollment", "Name")
	for _, period := range gradebook.Periods {
		fmt.Fprintf(w, " %10s", period.Title)
	}
	fmt.Fprintf(w, " %10s %s\n", "Final", "Result")

	for _, s := range result.Students {
		fmt.Fprintf(w, "%-12s %-20s", s.EnrollmentID, s.Name)
		for _, period := range gradebook.Periods {
			fmt.Fprintf(w, " %10.2f", s.PeriodGrades[period.ID])
		}
		verdict := "FAILED"
		if s.Passed {
			verdict = "PASSED"
		}
		fmt.Fprintf(w, " %10.2f %s\n", s.FinalGrade, verdict)
		for _, issue := range s.Issues {
			fmt.Fprintf(w, "  ! %s\n", issue)
		}
	}
}
