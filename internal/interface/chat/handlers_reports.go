package chat

import (
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/report"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// All report handlers read one store snapshot, so a reply never mixes states.
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleReports(req *request) string {
	snap := r.store.Snapshot()
	overview := report.Overview(snap, req.user)
	if len(overview) == 0 {
		return msgNoSubjects
	}

	items := make([]string, 0, len(overview))
	for _, sp := range overview {
		items = append(items, sp.Subject)
	}
	req.advance(dialogue.WithMenu(dialogue.MenuReports, items))
	return reportListText(overview, r.config.Threshold)
}

func (r *Router) handleReport(req *request) string {
	subject, reject, ok := listItem(req, dialogue.MenuReports, req.cmd.Index)
	if !ok {
		return reject
	}

	rep, ok := report.BuildSubjectReport(r.store.Snapshot(), req.user, subject)
	if !ok {
		req.fail(outcomeNotFound)
		return msgSubjectGone
	}
	return subjectReportText(rep, r.config.Threshold)
}

func (r *Router) handleAlerts(req *request) string {
	snap := r.store.Snapshot()
	if len(report.Overview(snap, req.user)) == 0 {
		return msgNoSubjects
	}
	return alertsText(report.ListLowAttendance(snap, req.user, r.config.Threshold), r.config.Threshold)
}

func (r *Router) handleView(req *request) string {
	snap := r.store.Snapshot()
	overview := report.Overview(snap, req.user)
	low := report.ListLowAttendance(snap, req.user, r.config.Threshold)
	return overviewText(r.teacherName(req.user), overview, low, r.config.Threshold)
}

func (r *Router) handleTeachers(_ *request) string {
	return directoryText(report.Directory(r.store.Snapshot()))
}

func (r *Router) handleMyAttendance(req *request) string {
	rep, ok := report.BuildStudentReport(r.store.Snapshot(), req.user)
	if !ok {
		req.fail(outcomeForbidden)
		return msgNotStudent
	}
	return myAttendanceText(rep)
}
