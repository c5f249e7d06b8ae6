package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/report"
	"github.com/classroll/classroll-bot/internal/interface/http/handlers"
)

var (
	reportTeacher string
	reportNotify  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print subject attendance from the stored registry",
	Long: `Print every teacher's subjects with their attendance percentage and flag the
ones below the low-attendance threshold. With --notify each teacher with low
subjects also receives the alert through the configured notify backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a := &app{health: handlers.NewCompositeHealthChecker(cfg.App.Version)}
		defer a.close()

		gateway, err := a.openGateway(ctx, cfg, log)
		if err != nil {
			return err
		}
		store := attendance.NewStore(attendance.StoreConfig{
			IDSuffix: cfg.Attendance.IDSuffix,
			Location: cfg.App.Location,
		}, gateway)
		if err := store.Restore(ctx); err != nil {
			return err
		}
		snap := store.Snapshot()

		if err := printReport(cmd.OutOrStdout(), snap, reportTeacher, cfg.Attendance.Threshold); err != nil {
			return err
		}
		if !reportNotify {
			return nil
		}

		sender, err := newSender(cfg, nil, log)
		if err != nil {
			return err
		}
		for _, alert := range report.AllLowAttendance(snap, cfg.Attendance.Threshold) {
			if reportTeacher != "" && alert.Teacher.ID != reportTeacher {
				continue
			}
			if err := sender.Send(ctx, alert.Teacher.ID, alertText(alert, cfg.Attendance.Threshold)); err != nil {
				log.Warn("alert not delivered", zap.String("teacher_id", alert.Teacher.ID), zap.Error(err))
				continue
			}
			log.Info("alert sent", zap.String("teacher_id", alert.Teacher.ID), zap.Int("subjects", len(alert.Low)))
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportTeacher, "teacher", "", "limit the report to one teacher id")
	reportCmd.Flags().BoolVar(&reportNotify, "notify", false, "send low-attendance alerts to teachers")
}

func printReport(out io.Writer, snap *attendance.Snapshot, teacherID string, threshold float64) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEACHER\tSUBJECT\tATTENDANCE\tSTATUS")
	for _, summary := range report.Directory(snap) {
		t := summary.Teacher
		if teacherID != "" && t.ID != teacherID {
			continue
		}
		subjects := report.Overview(snap, t.ID)
		if len(subjects) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", t.Name)
			continue
		}
		for _, sp := range subjects {
			state := "good"
			if sp.Percent < threshold {
				state = "LOW"
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", t.Name, sp.Subject, sp.Percent, state)
		}
	}
	return w.Flush()
}

func alertText(alert report.TeacherAlert, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Subjects below %.0f%% attendance:\n", threshold)
	for _, sp := range alert.Low {
		fmt.Fprintf(&b, "\n• %s: %.1f%%", sp.Subject, sp.Percent)
	}
	return b.String()
}
