package chat

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND GRAMMAR
// Parse is context-free; the router decides what a command means for the
// user's current stage and menu.
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the parsed command type.
type Kind int

const (
	KindUnknown Kind = iota
	KindReset
	KindStart
	KindHelp
	KindRegister
	KindAddSubject
	KindStudentsMenu
	KindAddStudent
	KindViewStudents
	KindMark
	KindReports
	KindAlerts
	KindView
	KindTeachers
	KindMyAttendance
	KindRemoveMenu
	KindDeleteAccount
	KindConfirmDelete
	KindLetterA
	KindLetterB
	KindNumber
	KindSelectSubject
	KindReport
	KindRemoveSubject
	KindRemoveStudent
	KindMarkStudent
	KindBulk
	KindBulkStatus
	KindDone
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindReset:         "reset",
	KindStart:         "start",
	KindHelp:          "help",
	KindRegister:      "register",
	KindAddSubject:    "add_subject",
	KindStudentsMenu:  "students_menu",
	KindAddStudent:    "add_student",
	KindViewStudents:  "view_students",
	KindMark:          "mark",
	KindReports:       "reports",
	KindAlerts:        "alerts",
	KindView:          "view",
	KindTeachers:      "teachers",
	KindMyAttendance:  "my_attendance",
	KindRemoveMenu:    "remove_menu",
	KindDeleteAccount: "delete_account",
	KindConfirmDelete: "confirm_delete",
	KindLetterA:       "letter_a",
	KindLetterB:       "letter_b",
	KindNumber:        "number",
	KindSelectSubject: "select_subject",
	KindReport:        "report",
	KindRemoveSubject: "remove_subject",
	KindRemoveStudent: "remove_student",
	KindMarkStudent:   "mark_student",
	KindBulk:          "bulk",
	KindBulkStatus:    "bulk_status",
	KindDone:          "done",
}

// String returns the command name used in logs.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a parsed inbound text.
type Command struct {
	Kind   Kind
	Index  int               // 1-based, for positional and numeric commands
	Status attendance.Status // for student.<n> <S> and bulk <S>
	Text   string            // trimmed message text
}

// keywords are matched case-insensitively.
var keywords = map[string]Kind{
	"/cancel":                KindReset,
	"/reset":                 KindReset,
	"/exit":                  KindReset,
	"/start":                 KindStart,
	"/menu":                  KindStart,
	"/help":                  KindHelp,
	"/register":              KindRegister,
	"/add":                   KindAddSubject,
	"/students":              KindStudentsMenu,
	"/addstudent":            KindAddStudent,
	"/viewstudents":          KindViewStudents,
	"/mark":                  KindMark,
	"/reports":               KindReports,
	"/alert":                 KindAlerts,
	"/view":                  KindView,
	"/teachers":              KindTeachers,
	"/myattendance":          KindMyAttendance,
	"/remove":                KindRemoveMenu,
	"/deleteaccount":         KindDeleteAccount,
	"confirm.delete.account": KindConfirmDelete,
	"bulk":                   KindBulk,
	"done":                   KindDone,
	"a":                      KindLetterA,
	"b":                      KindLetterB,
}

// mainMenu maps the digits of the /start menu.
var mainMenu = map[int]Kind{
	1: KindAddSubject,
	2: KindStudentsMenu,
	3: KindMark,
	4: KindReports,
	5: KindView,
	6: KindRemoveMenu,
	7: KindDeleteAccount,
}

var (
	numberRe        = regexp.MustCompile(`^\d{1,6}$`)
	subjectRe       = regexp.MustCompile(`^(?i)subject\.(\d{1,6})$`)
	reportRe        = regexp.MustCompile(`^(?i)report\.(\d{1,6})$`)
	removeSubjectRe = regexp.MustCompile(`^(?i)remove\.subject\.(\d{1,6})$`)
	removeStudentRe = regexp.MustCompile(`^(?i)remove\.student\.(\d{1,6})$`)
	markStudentRe   = regexp.MustCompile(`^(?i)student\.(\d{1,6})\s+([PAHN])$`)
	bulkStatusRe    = regexp.MustCompile(`^(?i)bulk\s+([PAHN])$`)
)

// Parse classifies text.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	cmd := Command{Kind: KindUnknown, Text: text}
	if text == "" {
		return cmd
	}

	if kind, ok := keywords[strings.ToLower(text)]; ok {
		cmd.Kind = kind
		return cmd
	}

	if numberRe.MatchString(text) {
		cmd.Kind = KindNumber
		cmd.Index, _ = strconv.Atoi(text)
		return cmd
	}

	positional := []struct {
		re   *regexp.Regexp
		kind Kind
	}{
		{subjectRe, KindSelectSubject},
		{reportRe, KindReport},
		{removeSubjectRe, KindRemoveSubject},
		{removeStudentRe, KindRemoveStudent},
	}
	for _, p := range positional {
		if m := p.re.FindStringSubmatch(text); m != nil {
			cmd.Kind = p.kind
			cmd.Index, _ = strconv.Atoi(m[1])
			return cmd
		}
	}

	if m := markStudentRe.FindStringSubmatch(text); m != nil {
		cmd.Kind = KindMarkStudent
		cmd.Index, _ = strconv.Atoi(m[1])
		cmd.Status = attendance.Status(strings.ToUpper(m[2]))
		return cmd
	}

	if m := bulkStatusRe.FindStringSubmatch(text); m != nil {
		cmd.Kind = KindBulkStatus
		cmd.Status = attendance.Status(strings.ToUpper(m[1]))
		return cmd
	}

	return cmd
}

// MainMenuKind maps a digit of the main menu to its command.
func MainMenuKind(n int) (Kind, bool) {
	k, ok := mainMenu[n]
	return k, ok
}

// selections maps structured reply tokens (button ids) to command text.
var selections = map[string]string{
	"register":      "/register",
	"add":           "/add",
	"students":      "/students",
	"addStudent":    "/addStudent",
	"viewStudents":  "/viewStudents",
	"mark":          "/mark",
	"reports":       "/reports",
	"alert":         "/alert",
	"view":          "/view",
	"remove":        "/remove",
	"myattendance":  "/myattendance",
	"deleteAccount": "/deleteAccount",
}

var selectionIndexRe = regexp.MustCompile(`^(subject|report)-(\d{1,6})$`)

// FromSelection converts a structured selection token to command text.
func FromSelection(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	if text, ok := selections[token]; ok {
		return text, true
	}
	if m := selectionIndexRe.FindStringSubmatch(token); m != nil {
		return m[1] + "." + m[2], true
	}
	return "", false
}
