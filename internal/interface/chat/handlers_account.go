package chat

import (
	"errors"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/shared"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// START / HELP / REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleStart(req *request) string {
	switch r.store.Role(req.user) {
	case attendance.RoleTeacher:
		req.advance(dialogue.WithMenu(dialogue.MenuMain, nil))
		return mainMenuText(r.teacherName(req.user))
	case attendance.RoleStudent:
		st, _ := r.store.Student(req.user)
		return studentWelcomeText(st)
	default:
		return welcomeText()
	}
}

func (r *Router) handleHelp(_ *request) string {
	return helpText()
}

func (r *Router) handleRegister(req *request) string {
	if r.store.Role(req.user) == attendance.RoleStudent {
		req.fail(outcomeConflict)
		return roleConflictText()
	}
	req.advance(dialogue.AwaitTeacherName())
	return registerPrompt()
}

func (r *Router) stageTeacherName(req *request) string {
	created, err := r.store.AddTeacher(req.ctx, req.user, req.cmd.Text)
	if !r.settle(req, err) {
		switch {
		case shared.IsValidation(err):
			return registerPrompt()
		case shared.IsAlreadyExists(err):
			req.clear()
			return roleConflictText()
		default:
			req.clear()
			return msgStoreUnavailable
		}
	}

	req.clear()
	name := r.teacherName(req.user)
	req.logger.Info("teacher registered", logger.TeacherID(req.user), zap.Bool("created", created))
	return teacherRegisteredText(name, created)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleAddSubject(req *request) string {
	req.advance(dialogue.AwaitSubjectName())
	return subjectPrompt()
}

func (r *Router) stageSubjectName(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}

	name := req.cmd.Text
	err := r.store.AddSubject(req.ctx, req.user, name)
	if !r.settle(req, err) {
		switch {
		case shared.IsValidation(err):
			return subjectPrompt()
		case shared.IsAlreadyExists(err):
			req.clear()
			return subjectExistsText(name)
		case shared.IsNotFound(err):
			req.clear()
			return msgTeacherGone
		default:
			req.clear()
			return msgStoreUnavailable
		}
	}

	req.clear()
	req.logger.Info("subject added", logger.Subject(name))
	return subjectAddedText(name)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleStudentsMenu(req *request) string {
	req.advance(dialogue.WithMenu(dialogue.MenuStudents, nil))
	return studentsMenuText()
}

func (r *Router) handleAddStudent(req *request) string {
	req.advance(dialogue.AwaitStudentName())
	return studentNamePrompt()
}

func (r *Router) handleViewStudents(req *request) string {
	return studentListText(r.store.StudentsOf(req.user))
}

func (r *Router) stageStudentName(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}
	name := req.cmd.Text
	req.advance(dialogue.AwaitStudentPhone(name))
	return studentPhonePrompt(name)
}

// stageStudentPhone keeps the stage on a bad or taken number so the teacher
// can retry without re-entering the name.
func (r *Router) stageStudentPhone(req *request) string {
	if !r.stillTeacher(req) {
		return msgTeacherGone
	}

	st, err := r.store.AddStudent(req.ctx, req.user, req.session.PendingName, req.cmd.Text)
	if !r.settle(req, err) {
		switch {
		case errors.Is(err, shared.ErrEmptyName):
			req.advance(dialogue.AwaitStudentName())
			return studentNamePrompt()
		case shared.IsValidation(err):
			return phoneInvalidText()
		case shared.IsAlreadyExists(err):
			id, _, _ := attendance.StudentIDFromPhone(req.cmd.Text, r.store.IDSuffix())
			return phoneTakenText(id)
		case shared.IsNotFound(err):
			req.clear()
			return msgTeacherGone
		default:
			req.clear()
			return msgStoreUnavailable
		}
	}

	req.clear()
	req.logger.Info("student added", logger.StudentID(st.ID))
	return studentAddedText(st, r.teacherName(req.user))
}

// stillTeacher ends a teacher dialogue when the account has disappeared.
func (r *Router) stillTeacher(req *request) bool {
	if r.store.Role(req.user) == attendance.RoleTeacher {
		return true
	}
	req.clear()
	req.fail(outcomeForbidden)
	return false
}
