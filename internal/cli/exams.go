package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func newExamsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exams",
		Short: "List the exams the student may start now",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			lobby := service.NewLobbyService(e.store, e.log)
			eligible, err := lobby.Discover(cmd.Context(), e.user, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(eligible) == 0 {
				fmt.Fprintln(out, "No exams available right now.")
				return nil
			}
			summaries := make([]model.ExamSummary, 0, len(eligible))
			for i := range eligible {
				summaries = append(summaries, eligible[i].Summary())
			}
			writeExamTable(out, summaries)
			return nil
		},
	}
}

func writeExamTable(out io.Writer, exams []model.ExamSummary) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Title", "Mode", "Duration"})
	table.SetAutoWrapText(false)

	for i, e := range exams {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Title,
			modeLabel(e.Mode),
			fmt.Sprintf("%d min", e.DurationMinutes),
		})
	}
	table.Render()
}

func modeLabel(m model.ExamMode) string {
	if m == model.ExamModeExternalForm {
		return color.New(color.FgCyan).Sprint("form")
	}
	return "native"
}
