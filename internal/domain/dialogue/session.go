// Package dialogue tracks, for every chat user, which multi-step input the
// bot is waiting for. Each user has exactly one Session; absence means Idle.
package dialogue

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// STAGES
// ══════════════════════════════════════════════════════════════════════════════

// Stage is the tag of a dialogue session. Stages are mutually exclusive.
type Stage string

const (
	StageIdle                    Stage = "idle"
	StageAwaitingTeacherName     Stage = "awaiting_teacher_name"
	StageAwaitingSubjectName     Stage = "awaiting_subject_name"
	StageAwaitingStudentName     Stage = "awaiting_student_name"
	StageAwaitingStudentPhone    Stage = "awaiting_student_phone"
	StageAwaitingStudentSelect   Stage = "awaiting_student_selection"
	StageAwaitingAttendanceState Stage = "awaiting_attendance_status"
	StageAwaitingBulkStatus      Stage = "awaiting_bulk_status"
)

// IsMarking reports whether the stage belongs to the attendance-marking loop.
func (s Stage) IsMarking() bool {
	switch s {
	case StageAwaitingStudentSelect, StageAwaitingAttendanceState, StageAwaitingBulkStatus:
		return true
	}
	return false
}

// Menu identifies the list or submenu last shown to an idle user.
// Letter codes and positional addresses are resolved against it.
type Menu string

const (
	MenuNone           Menu = ""
	MenuMain           Menu = "main"
	MenuStudents       Menu = "students"
	MenuMarkSubjects   Menu = "mark_subjects"
	MenuReports        Menu = "reports"
	MenuRemove         Menu = "remove"
	MenuRemoveSubjects Menu = "remove_subjects"
	MenuRemoveStudents Menu = "remove_students"
	MenuDeleteAccount  Menu = "delete_account"
)

// StudentRef is a student as listed on screen.
type StudentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is the dialogue state of one user. Only the fields relevant to
// Stage are set.
type Session struct {
	Stage Stage `json:"stage"`

	// Idle: menu on screen and the items it listed (subject names or student IDs).
	Menu  Menu     `json:"menu,omitempty"`
	Items []string `json:"items,omitempty"`

	// AwaitingStudentPhone
	PendingName string `json:"pendingName,omitempty"`

	// Marking loop: subject and the roster snapshot taken when it was opened.
	Subject   string       `json:"subject,omitempty"`
	Roster    []StudentRef `json:"roster,omitempty"`
	StudentID string       `json:"studentId,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Idle returns an idle session with no menu.
func Idle() Session {
	return Session{Stage: StageIdle}
}

// WithMenu returns an idle session remembering the menu and its items.
func WithMenu(menu Menu, items []string) Session {
	return Session{Stage: StageIdle, Menu: menu, Items: items}
}

// AwaitTeacherName starts teacher registration.
func AwaitTeacherName() Session {
	return Session{Stage: StageAwaitingTeacherName}
}

// AwaitSubjectName starts subject creation.
func AwaitSubjectName() Session {
	return Session{Stage: StageAwaitingSubjectName}
}

// AwaitStudentName starts student creation.
func AwaitStudentName() Session {
	return Session{Stage: StageAwaitingStudentName}
}

// AwaitStudentPhone carries the name entered in the previous step.
func AwaitStudentPhone(name string) Session {
	return Session{Stage: StageAwaitingStudentPhone, PendingName: name}
}

// AwaitStudentSelection opens the marking loop for subject.
func AwaitStudentSelection(subject string, roster []StudentRef) Session {
	return Session{Stage: StageAwaitingStudentSelect, Subject: subject, Roster: roster}
}

// AwaitAttendanceStatus waits for the status of one student.
func AwaitAttendanceStatus(subject string, roster []StudentRef, studentID string) Session {
	return Session{Stage: StageAwaitingAttendanceState, Subject: subject, Roster: roster, StudentID: studentID}
}

// AwaitBulkStatus waits for one status applied to the whole roster.
func AwaitBulkStatus(subject string, roster []StudentRef) Session {
	return Session{Stage: StageAwaitingBulkStatus, Subject: subject, Roster: roster}
}

// IsIdle reports whether no dialogue is in progress.
func (s Session) IsIdle() bool {
	return s.Stage == "" || s.Stage == StageIdle
}

// IsBlank reports whether the session carries nothing worth storing.
func (s Session) IsBlank() bool {
	return s.IsIdle() && s.Menu == MenuNone
}

// HasList reports whether an idle user has an indexed list on screen.
func (s Session) HasList() bool {
	return s.IsIdle() && len(s.Items) > 0
}

// BackToSelection returns to the student selection step of the same subject.
func (s Session) BackToSelection() Session {
	return AwaitStudentSelection(s.Subject, s.Roster)
}

// RosterAt resolves a 1-based index against the roster snapshot.
func (s Session) RosterAt(index int) (StudentRef, bool) {
	if index < 1 || index > len(s.Roster) {
		return StudentRef{}, false
	}
	return s.Roster[index-1], true
}

// ItemAt resolves a 1-based index against the menu items.
func (s Session) ItemAt(index int) (string, bool) {
	if index < 1 || index > len(s.Items) {
		return "", false
	}
	return s.Items[index-1], true
}

// RosterIDs returns the IDs of the roster snapshot.
func (s Session) RosterIDs() []string {
	ids := make([]string, 0, len(s.Roster))
	for _, ref := range s.Roster {
		ids = append(ids, ref.ID)
	}
	return ids
}
