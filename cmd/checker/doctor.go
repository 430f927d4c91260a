package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgienger/checker/internal/repository"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Find tasks left behind by interrupted project deletes",
	Long: `Find tasks whose project no longer exists and projects whose delete was
interrupted. With --fix, finish the interrupted deletes and remove the
orphaned tasks.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "delete orphaned tasks and resume interrupted deletes")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.repo.SweepOrphans(cmd.Context(), doctorFix)
	fmt.Fprint(cmd.OutOrStdout(), formatSweepReport(report, doctorFix))
	if err != nil {
		return err
	}
	if !doctorFix && (len(report.Orphans) > 0 || len(report.Interrupted) > 0) {
		return errors.New("problems found; run 'checker doctor --fix' to repair")
	}
	return nil
}

func formatSweepReport(report repository.SweepReport, fix bool) string {
	if len(report.Orphans) == 0 && len(report.Interrupted) == 0 {
		return "No problems found.\n"
	}

	var out string
	for _, id := range report.Interrupted {
		out += fmt.Sprintf("interrupted delete: project %s\n", id)
	}
	if len(report.Orphans) > 0 {
		rows := make([][]string, 0, len(report.Orphans))
		for _, o := range report.Orphans {
			rows = append(rows, []string{o.TaskID, o.ProjectID, cell(o.Title)})
		}
		out += formatTable([]string{"TASK", "PROJECT", "TITLE"}, rows)
	}
	if fix {
		out += fmt.Sprintf("Deleted %d orphaned task(s).\n", report.Deleted)
	}
	return out
}
