package chat

import (
	"errors"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/shared"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MARKING
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleMark(req *request) string {
	subjects := r.store.Subjects(req.user)
	if len(subjects) == 0 {
		return msgNoSubjects
	}
	req.advance(dialogue.WithMenu(dialogue.MenuMarkSubjects, subjects))
	return subjectPickerText(subjects)
}

// handleSelectSubject opens the marking loop. The roster is snapshotted here;
// later indexes refer to this snapshot.
func (r *Router) handleSelectSubject(req *request) string {
	subject, reject, ok := listItem(req, dialogue.MenuMarkSubjects, req.cmd.Index)
	if !ok {
		return reject
	}
	if !r.store.HasSubject(req.user, subject) {
		req.fail(outcomeNotFound)
		return msgSubjectGone
	}

	students := r.store.StudentsOf(req.user)
	if len(students) == 0 {
		return msgNoStudents
	}
	roster := make([]dialogue.StudentRef, 0, len(students))
	for _, st := range students {
		roster = append(roster, dialogue.StudentRef{ID: st.ID, Name: st.Name})
	}

	req.advance(dialogue.AwaitStudentSelection(subject, roster))
	return rosterText(subject, roster)
}

func (r *Router) handleMarkingWhileIdle(req *request) string {
	req.fail(outcomeValidation)
	return msgNoMarkingList
}

func (r *Router) stageStudentSelect(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}
	s := req.session

	switch req.cmd.Kind {
	case KindDone:
		req.clear()
		return markingDoneText(s.Subject)
	case KindBulk:
		req.advance(dialogue.AwaitBulkStatus(s.Subject, s.Roster))
		return bulkPrompt(s.Subject)
	case KindBulkStatus:
		return r.markAll(req, req.cmd.Status)
	case KindMarkStudent:
		ref, ok := s.RosterAt(req.cmd.Index)
		if !ok {
			req.fail(outcomeValidation)
			return msgInvalidSelection
		}
		return r.markOne(req, ref, req.cmd.Status)
	case KindNumber:
		ref, ok := s.RosterAt(req.cmd.Index)
		if !ok {
			req.fail(outcomeValidation)
			return msgInvalidSelection
		}
		req.advance(dialogue.AwaitAttendanceStatus(s.Subject, s.Roster, ref.ID))
		return statusPrompt(s.Subject, ref.Name)
	}

	req.fail(outcomeValidation)
	return selectionHint()
}

func (r *Router) stageAttendanceStatus(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}
	if req.cmd.Kind == KindDone {
		req.clear()
		return markingDoneText(req.session.Subject)
	}

	status, err := attendance.ParseStatus(req.cmd.Text)
	if err != nil {
		req.fail(outcomeValidation)
		return statusHint()
	}

	ref := dialogue.StudentRef{ID: req.session.StudentID, Name: req.session.StudentID}
	for _, candidate := range req.session.Roster {
		if candidate.ID == req.session.StudentID {
			ref = candidate
			break
		}
	}
	return r.markOne(req, ref, status)
}

func (r *Router) stageBulkStatus(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}
	if req.cmd.Kind == KindDone {
		req.clear()
		return markingDoneText(req.session.Subject)
	}

	status := req.cmd.Status
	if req.cmd.Kind != KindBulkStatus {
		parsed, err := attendance.ParseStatus(req.cmd.Text)
		if err != nil {
			req.fail(outcomeValidation)
			return statusHint()
		}
		status = parsed
	}
	return r.markAll(req, status)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

func (r *Router) markOne(req *request, ref dialogue.StudentRef, status attendance.Status) string {
	subject := req.session.Subject
	date := r.store.Today()

	err := r.store.SetAttendance(req.ctx, attendance.Record{
		TeacherID: req.user,
		Subject:   subject,
		StudentID: ref.ID,
		Date:      date,
		Status:    status,
	})
	if !r.settle(req, err) {
		return r.markingFailure(req, err, ref.Name)
	}

	sent := r.notify(req, ref.ID, notificationText(subject, date, status, r.teacherName(req.user)))
	req.advance(req.session.BackToSelection())
	req.logger.Info("attendance marked",
		logger.Subject(subject),
		logger.StudentID(ref.ID),
	)
	return markedText(ref.Name, status, subject, date, sent)
}

func (r *Router) markAll(req *request, status attendance.Status) string {
	subject := req.session.Subject
	date := r.store.Today()

	marked, err := r.store.SetAttendanceBulk(req.ctx, req.user, subject, date, status, req.session.RosterIDs())
	if !r.settle(req, err) {
		return r.markingFailure(req, err, "")
	}

	sent := r.notifyAll(req, marked, notificationText(subject, date, status, r.teacherName(req.user)))
	req.advance(req.session.BackToSelection())
	req.logger.Info("bulk attendance marked",
		logger.Subject(subject),
	)
	return bulkDoneText(status, subject, date, len(marked), sent)
}

func (r *Router) markingFailure(req *request, err error, name string) string {
	switch {
	case errors.Is(err, shared.ErrStudentNotFound):
		req.advance(req.session.BackToSelection())
		return studentGoneText(name)
	case shared.IsNotFound(err):
		req.clear()
		return msgSubjectGone
	default:
		req.advance(req.session.BackToSelection())
		return msgStoreUnavailable
	}
}
