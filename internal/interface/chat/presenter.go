package chat

import (
	"fmt"
	"strings"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/report"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// Reply texts. Kept apart from routing so wording changes do not touch logic.
// ══════════════════════════════════════════════════════════════════════════════

const (
	msgUnknown          = "❓ Unknown command. Send /start for menu or /help for instructions."
	msgCancelled        = "🛑 Cancelled. Send /start for menu."
	msgPermissionDenied = "🚫 You don't have permission to do that."
	msgNotStudent       = "🚫 This command is only available to registered students."
	msgNoSubjects       = "❌ No subjects added yet. Please add subjects first using option 1."
	msgNoStudents       = "⚠️ No students registered yet. Add students first using option 2."
	msgNoMarkingList    = "ℹ️ No attendance list is open. Send 3 to choose a subject first."
	msgInvalidSelection = "❌ Invalid selection. Please check the list and try again."
	msgMenuClosed       = "ℹ️ That option belongs to a menu that is not open. Send /start for menu."
	msgDurability       = "⚠️ Your change was applied but could not be saved to storage. It will be saved with the next change."
	msgStoreUnavailable = "⚠️ Something went wrong. Please try again."
	msgSubjectGone      = "⚠️ That subject no longer exists. Send 3 to choose another subject."
	msgTeacherGone      = "⚠️ Your teacher account no longer exists. Send /register to start again."
	msgDeletePrompt     = "⚠️ Delete Account\n\nThis removes all your subjects, students and attendance records.\n\nSend \"confirm.delete.account\" to confirm or /cancel to keep your account."
	msgDeleteNotOpen    = "ℹ️ Send 7 first to start account deletion."
)

func statusLegend() string {
	return "🟢 P - Present  🔴 A - Absent  🟡 H - Holiday  📚 N - No Class"
}

func quality(pct, threshold float64) string {
	if pct < threshold {
		return "⚠️ Low"
	}
	return "✅ Good"
}

func formatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

func welcomeText() string {
	return `🎓 Welcome to Attendance Bot!

To get started, you need to register as a teacher first.

📝 Send: /register

Then follow the simple steps to set up your classes!`
}

func studentWelcomeText(st attendance.Student) string {
	return fmt.Sprintf("👋 Hi %s!\n\nSend /myattendance to see your attendance report.", st.Name)
}

func mainMenuText(teacherName string) string {
	return fmt.Sprintf(`👋 Hello %s!

What would you like to do today?

📚 1 - Add a new subject
👥 2 - Manage students
✅ 3 - Mark student attendance
📊 4 - Check attendance reports
⚙️ 5 - View subjects and alerts
🗑️ 6 - Remove subject or student
❌ 7 - Delete my account

Just type the number to choose!`, teacherName)
}

func helpText() string {
	return `ℹ️ Attendance Bot Help

Teachers:
• /register - register as a teacher
• /start - main menu
• /add - add a subject
• /students - manage students (/addStudent, /viewStudents)
• /mark - mark attendance
• /reports - attendance reports
• /alert - subjects below the threshold
• /view - all subjects with percentages
• /teachers - registered teachers
• /remove - remove a subject or student
• /deleteAccount - delete your account

Students:
• /myattendance - your attendance report

Send /cancel at any time to stop the current step.`
}

func registerPrompt() string {
	return "👨‍🏫 Teacher Registration\n\nPlease send your full name to register as a teacher.\n\nExample: Dr. John Smith"
}

func teacherRegisteredText(name string, created bool) string {
	if !created {
		return fmt.Sprintf("✅ Your name has been updated to %s.\n\nSend /start for menu.", name)
	}
	return fmt.Sprintf("✅ Welcome %s! You are now registered as a teacher.\n\nSend /start for menu.", name)
}

func subjectPrompt() string {
	return "📚 Add New Subject\n\nPlease send the name of the subject you want to add.\n\nExamples:\n• Mathematics\n• Physics\n• Chemistry"
}

func subjectAddedText(name string) string {
	return fmt.Sprintf("✅ Subject \"%s\" added to your classes!", name)
}

func subjectExistsText(name string) string {
	return fmt.Sprintf("⚠️ Subject \"%s\" already exists.", name)
}

func studentsMenuText() string {
	return "👥 Student Management\n\nWhat would you like to do?\n\n➕ A - Add a new student\n📋 B - View all students\n\nType A or B to choose!"
}

func studentNamePrompt() string {
	return "👤 Add New Student\n\nPlease send the student's full name.\n\nExample: John Doe"
}

func studentPhonePrompt(name string) string {
	return fmt.Sprintf(`📱 Student Phone Number

Now send the WhatsApp number of %s.

Examples:
• +1234567890
• +919876543210

Make sure to include the country code!`, name)
}

func phoneInvalidText() string {
	return "❌ That phone number contains no digits. Please send a number like +919876543210, or /cancel."
}

func phoneTakenText(id string) string {
	return fmt.Sprintf("❌ The number behind %s is already registered. Please send a different number, or /cancel.", id)
}

func studentAddedText(st attendance.Student, teacherName string) string {
	return fmt.Sprintf(`✅ Great! Student "%s" has been added successfully!

📱 Phone: %s
👨‍🏫 Teacher: %s

The student will now receive attendance notifications.`, st.Name, st.Phone, teacherName)
}

func studentListText(students []attendance.Student) string {
	var b strings.Builder
	b.WriteString("👥 Your Students:\n\n")
	if len(students) == 0 {
		b.WriteString("No students registered yet.")
		return b.String()
	}
	for _, st := range students {
		fmt.Fprintf(&b, "• %s (%s)\n", st.Name, st.Phone)
	}
	return strings.TrimRight(b.String(), "\n")
}

func subjectPickerText(subjects []string) string {
	var b strings.Builder
	b.WriteString("📚 Choose Subject for Attendance\n\nSelect a subject:\n\n")
	for i, s := range subjects {
		fmt.Fprintf(&b, "%d. %s: Send \"subject.%d\"\n", i+1, s, i+1)
	}
	return strings.TrimRight(b.String(), "\n")
}

func rosterText(subject string, roster []dialogue.StudentRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Attendance List - %s\n\n", subject)
	for i, ref := range roster {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ref.Name)
	}
	b.WriteString("\n" + statusLegend() + "\n\n")
	b.WriteString("Send a number to pick a student, or \"student.[number] [P/A/H/N]\" to mark directly.\n")
	b.WriteString("Send \"bulk\" to mark everyone at once, \"done\" when finished.")
	return b.String()
}

func statusPrompt(subject, name string) string {
	return fmt.Sprintf("✏️ %s - %s\n\n%s\n\nSend P, A, H or N.", subject, name, statusLegend())
}

func bulkPrompt(subject string) string {
	return fmt.Sprintf(`📋 Bulk Attendance - %s

Mark all students at once:

🟢 Send "P" - Mark all as Present
🔴 Send "A" - Mark all as Absent
🟡 Send "H" - Mark all as Holiday
📚 Send "N" - Mark all as No Class`, subject)
}

func selectionHint() string {
	return "❌ Please send a student number, \"student.[number] [P/A/H/N]\", \"bulk\" or \"done\"."
}

func statusHint() string {
	return "❌ Please send one of P, A, H or N."
}

func notificationLine(sent bool) string {
	if sent {
		return "📱 Notification sent!"
	}
	return "⚠️ Notification failed"
}

func markedText(name string, st attendance.Status, subject, date string, sent bool) string {
	return fmt.Sprintf("✅ Marked %s as %s for %s\n📅 Date: %s\n%s\n\nPick the next student, send \"bulk\" for everyone or \"done\" to finish.",
		name, st.Label(), subject, date, notificationLine(sent))
}

func bulkDoneText(st attendance.Status, subject, date string, marked, sent int) string {
	return fmt.Sprintf(`✅ Bulk Attendance Complete!

📊 Results:
• Students marked: %d
• Status: %s
• Subject: %s
• Date: %s
• Notifications sent: %d/%d

Pick a student to adjust, or send "done" to finish.`, marked, st.Label(), subject, date, sent, marked)
}

func markingDoneText(subject string) string {
	return fmt.Sprintf("✅ Finished marking %s. Send /start for menu.", subject)
}

func studentGoneText(name string) string {
	return fmt.Sprintf("⚠️ %s is no longer registered. Pick another student.", name)
}

func notificationText(subject, date string, st attendance.Status, teacherName string) string {
	return fmt.Sprintf("📚 Attendance Update\n\nSubject: %s\nDate: %s\nStatus: %s\nTeacher: %s",
		subject, date, st.Label(), teacherName)
}

func reportListText(overview []report.SubjectPercent, threshold float64) string {
	var b strings.Builder
	b.WriteString("📊 Check Attendance Reports\n\nSelect a subject to view reports:\n\n")
	for i, sp := range overview {
		fmt.Fprintf(&b, "%d. %s: %s (%s)\n", i+1, sp.Subject, formatPercent(sp.Percent), quality(sp.Percent, threshold))
		fmt.Fprintf(&b, "   Send \"report.%d\" to view details\n", i+1)
	}
	return strings.TrimRight(b.String(), "\n")
}

func tallyLine(t report.Tally) string {
	return fmt.Sprintf("Present: %d, Absent: %d, Holiday: %d, No Class: %d", t.Present, t.Absent, t.Holiday, t.NoClass)
}

func subjectReportText(rep report.SubjectReport, threshold float64) string {
	pct := rep.Overall.Percent()
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Attendance Report - %s\n\nOverall: %s (%s)\n\nStudent Details:\n", rep.Subject, formatPercent(pct), quality(pct, threshold))
	if len(rep.Students) == 0 {
		b.WriteString("\nNo students registered yet.")
	}
	for _, line := range rep.Students {
		fmt.Fprintf(&b, "\n👤 %s: %s\n   %s", line.Student.Name, formatPercent(line.Tally.Percent()), tallyLine(line.Tally))
	}
	return b.String()
}

func overviewText(teacherName string, overview []report.SubjectPercent, low []report.SubjectPercent, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s's Subjects:\n\n", teacherName)
	if len(overview) == 0 {
		b.WriteString("No subjects added yet.")
		return b.String()
	}
	for _, sp := range overview {
		fmt.Fprintf(&b, "%s: %s (%s)\n", sp.Subject, formatPercent(sp.Percent), quality(sp.Percent, threshold))
	}
	b.WriteString("\n")
	b.WriteString(alertsText(low, threshold))
	return b.String()
}

func alertsText(low []report.SubjectPercent, threshold float64) string {
	if len(low) == 0 {
		return fmt.Sprintf("✅ All your subjects are at or above %.0f%%.", threshold)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Your subjects below %.0f%%:\n", threshold)
	for _, sp := range low {
		fmt.Fprintf(&b, "%s: %s\n", sp.Subject, formatPercent(sp.Percent))
	}
	return strings.TrimRight(b.String(), "\n")
}

func directoryText(dir []report.TeacherSummary) string {
	var b strings.Builder
	b.WriteString("👨‍🏫 Registered Teachers:\n\n")
	for _, ts := range dir {
		fmt.Fprintf(&b, "%s: %d subjects, %d students\n", ts.Teacher.Name, ts.SubjectCount, ts.StudentCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func myAttendanceText(rep report.StudentReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Your Attendance Report\n\nTeacher: %s\n\n", rep.TeacherName)
	if len(rep.Subjects) == 0 {
		b.WriteString("No attendance records found.")
		return b.String()
	}
	for _, line := range rep.Subjects {
		fmt.Fprintf(&b, "📚 %s: %s\n   %s\n\n", line.Subject, formatPercent(line.Tally.Percent()), tallyLine(line.Tally))
	}
	return strings.TrimRight(b.String(), "\n")
}

func removeMenuText() string {
	return "🗑️ Remove\n\nWhat would you like to remove?\n\n📚 A - A subject (with its attendance)\n👤 B - A student (with all their records)\n\nType A or B to choose!"
}

func removeSubjectListText(subjects []string) string {
	var b strings.Builder
	b.WriteString("🗑️ Remove Subject\n\n")
	for i, s := range subjects {
		fmt.Fprintf(&b, "%d. %s: Send \"remove.subject.%d\"\n", i+1, s, i+1)
	}
	return strings.TrimRight(b.String(), "\n")
}

func removeStudentListText(students []attendance.Student) string {
	var b strings.Builder
	b.WriteString("🗑️ Remove Student\n\n")
	for i, st := range students {
		fmt.Fprintf(&b, "%d. %s (%s): Send \"remove.student.%d\"\n", i+1, st.Name, st.Phone, i+1)
	}
	return strings.TrimRight(b.String(), "\n")
}

func openListFirstText(menu dialogue.Menu) string {
	switch menu {
	case dialogue.MenuMarkSubjects:
		return "ℹ️ No subject list is open. Send 3 to see your subjects first."
	case dialogue.MenuReports:
		return "ℹ️ No report list is open. Send 4 to see your reports first."
	case dialogue.MenuRemoveSubjects:
		return "ℹ️ No subject list is open. Send 6, then A to open the list first."
	case dialogue.MenuRemoveStudents:
		return "ℹ️ No student list is open. Send 6, then B to open the list first."
	}
	return msgMenuClosed
}

func subjectRemovedText(name string, existed bool) string {
	if !existed {
		return fmt.Sprintf("ℹ️ Subject \"%s\" was already removed.", name)
	}
	return fmt.Sprintf("✅ Subject \"%s\" and its attendance records were removed.", name)
}

func studentRemovedText(name string, existed bool) string {
	if !existed {
		return fmt.Sprintf("ℹ️ %s was already removed.", name)
	}
	return fmt.Sprintf("✅ %s and all their attendance records were removed.", name)
}

func accountDeletedText(existed bool) string {
	if !existed {
		return "ℹ️ There is no teacher account to delete."
	}
	return "✅ Your account, subjects, students and attendance records were deleted.\n\nSend /register to start again."
}

func roleConflictText() string {
	return "❌ This number is registered as a student, so it cannot register as a teacher."
}
