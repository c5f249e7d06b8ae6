package chat

import (
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMENU LETTERS
// A and B mean different things in each submenu; outside one they are rejected.
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleLetter(req *request) string {
	first := req.cmd.Kind == KindLetterA

	switch req.session.Menu {
	case dialogue.MenuStudents:
		if first {
			return r.handleAddStudent(req)
		}
		return r.handleViewStudents(req)
	case dialogue.MenuRemove:
		if first {
			return r.handleRemoveSubjectList(req)
		}
		return r.handleRemoveStudentList(req)
	}

	req.fail(outcomeUnknown)
	req.keep()
	return msgMenuClosed
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOVAL
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleRemoveMenu(req *request) string {
	req.advance(dialogue.WithMenu(dialogue.MenuRemove, nil))
	return removeMenuText()
}

func (r *Router) handleRemoveSubjectList(req *request) string {
	subjects := r.store.Subjects(req.user)
	if len(subjects) == 0 {
		return msgNoSubjects
	}
	req.advance(dialogue.WithMenu(dialogue.MenuRemoveSubjects, subjects))
	return removeSubjectListText(subjects)
}

func (r *Router) handleRemoveStudentList(req *request) string {
	students := r.store.StudentsOf(req.user)
	if len(students) == 0 {
		return msgNoStudents
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	req.advance(dialogue.WithMenu(dialogue.MenuRemoveStudents, ids))
	return removeStudentListText(students)
}

func (r *Router) handleRemoveSubject(req *request) string {
	name, reject, ok := listItem(req, dialogue.MenuRemoveSubjects, req.cmd.Index)
	if !ok {
		return reject
	}

	existed, err := r.store.RemoveSubject(req.ctx, req.user, name)
	if !r.settle(req, err) {
		return msgStoreUnavailable
	}
	if existed {
		req.logger.Info("subject removed", logger.Subject(name))
	}
	return subjectRemovedText(name, existed)
}

func (r *Router) handleRemoveStudent(req *request) string {
	id, reject, ok := listItem(req, dialogue.MenuRemoveStudents, req.cmd.Index)
	if !ok {
		return reject
	}

	name := "That student"
	if st, found := r.store.Student(id); found {
		name = st.Name
	}

	existed, err := r.store.RemoveStudent(req.ctx, req.user, id)
	if !r.settle(req, err) {
		return msgStoreUnavailable
	}
	if existed {
		req.logger.Info("student removed", logger.StudentID(id))
	}
	return studentRemovedText(name, existed)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT DELETION
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) handleDeleteAccount(req *request) string {
	req.advance(dialogue.WithMenu(dialogue.MenuDeleteAccount, nil))
	return msgDeletePrompt
}

func (r *Router) handleConfirmDelete(req *request) string {
	if req.session.Menu != dialogue.MenuDeleteAccount {
		req.fail(outcomeValidation)
		return msgDeleteNotOpen
	}

	existed, err := r.store.RemoveTeacher(req.ctx, req.user)
	if !r.settle(req, err) {
		return msgStoreUnavailable
	}
	req.logger.Info("teacher account deleted", logger.TeacherID(req.user), zap.Bool("existed", existed))
	return accountDeletedText(existed)
}
