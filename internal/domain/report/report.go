// Package report computes attendance percentages and summaries.
// All functions are pure: they read an attendance.Snapshot and never mutate it.
package report

import (
	"math"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
)

// DefaultThreshold is the percentage below which a subject is flagged.
const DefaultThreshold = 75.0

// Tally counts marks of each status.
type Tally struct {
	Present int
	Absent  int
	Holiday int
	NoClass int
}

// Add records one mark.
func (t *Tally) Add(s attendance.Status) {
	switch s {
	case attendance.StatusPresent:
		t.Present++
	case attendance.StatusAbsent:
		t.Absent++
	case attendance.StatusHoliday:
		t.Holiday++
	case attendance.StatusNoClass:
		t.NoClass++
	}
}

// Merge adds other into t.
func (t *Tally) Merge(other Tally) {
	t.Present += other.Present
	t.Absent += other.Absent
	t.Holiday += other.Holiday
	t.NoClass += other.NoClass
}

// Total is the number of marks of any status.
func (t Tally) Total() int {
	return t.Present + t.Absent + t.Holiday + t.NoClass
}

// Percent = present / (present + absent) * 100, one decimal place.
// Holidays and no-class days are excluded; 0 when there is nothing to count.
func (t Tally) Percent() float64 {
	counted := t.Present + t.Absent
	if counted == 0 {
		return 0
	}
	return Round1(float64(t.Present) / float64(counted) * 100)
}

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ════════════════════════════════════════════════════════════════════════════
// PERCENTAGES
// ════════════════════════════════════════════════════════════════════════════

// SubjectTally sums marks for a subject. An empty studentID means all students.
// Unknown teacher or subject yields an empty tally.
func SubjectTally(snap *attendance.Snapshot, teacherID, subject, studentID string) Tally {
	var tally Tally
	tr, ok := snap.Teacher(teacherID)
	if !ok {
		return tally
	}
	sub, ok := tr.Subject(subject)
	if !ok {
		return tally
	}
	for id, days := range sub.Ledger {
		if studentID != "" && id != studentID {
			continue
		}
		for _, st := range days {
			tally.Add(st)
		}
	}
	return tally
}

// ComputePercent returns the attendance percentage for a subject, optionally
// restricted to one student.
func ComputePercent(snap *attendance.Snapshot, teacherID, subject, studentID string) float64 {
	return SubjectTally(snap, teacherID, subject, studentID).Percent()
}

// SubjectPercent pairs a subject with its overall percentage.
type SubjectPercent struct {
	Subject string
	Percent float64
}

// Overview returns every subject of the teacher with its percentage,
// in insertion order.
func Overview(snap *attendance.Snapshot, teacherID string) []SubjectPercent {
	tr, ok := snap.Teacher(teacherID)
	if !ok {
		return nil
	}
	out := make([]SubjectPercent, 0, len(tr.Subjects))
	for _, sub := range tr.Subjects {
		out = append(out, SubjectPercent{
			Subject: sub.Name,
			Percent: ComputePercent(snap, teacherID, sub.Name, ""),
		})
	}
	return out
}

// ListLowAttendance returns subjects whose overall percentage is strictly below
// threshold, in insertion order. A subject with no P/A marks is at 0 and is listed.
func ListLowAttendance(snap *attendance.Snapshot, teacherID string, threshold float64) []SubjectPercent {
	var low []SubjectPercent
	for _, sp := range Overview(snap, teacherID) {
		if sp.Percent < threshold {
			low = append(low, sp)
		}
	}
	return low
}

// ════════════════════════════════════════════════════════════════════════════
// DETAILED REPORTS
// ════════════════════════════════════════════════════════════════════════════

// StudentLine is one student's tally within a subject.
type StudentLine struct {
	Student attendance.Student
	Tally   Tally
}

// SubjectReport is a subject summary with per-student lines.
type SubjectReport struct {
	Subject  string
	Overall  Tally
	Students []StudentLine
}

// BuildSubjectReport lists students in registration order. ok is false when
// the teacher or subject does not exist.
func BuildSubjectReport(snap *attendance.Snapshot, teacherID, subject string) (SubjectReport, bool) {
	tr, ok := snap.Teacher(teacherID)
	if !ok {
		return SubjectReport{}, false
	}
	if _, ok := tr.Subject(subject); !ok {
		return SubjectReport{}, false
	}

	rep := SubjectReport{Subject: subject}
	for _, st := range snap.StudentsOf(teacherID) {
		tally := SubjectTally(snap, teacherID, subject, st.ID)
		rep.Overall.Merge(tally)
		rep.Students = append(rep.Students, StudentLine{Student: st, Tally: tally})
	}
	return rep, true
}

// SubjectLine is one subject's tally for a single student.
type SubjectLine struct {
	Subject string
	Tally   Tally
}

// StudentReport shows one student across all subjects of their teacher.
type StudentReport struct {
	Student     attendance.Student
	TeacherName string
	Subjects    []SubjectLine
}

// BuildStudentReport returns ok=false when the student is unknown.
func BuildStudentReport(snap *attendance.Snapshot, studentID string) (StudentReport, bool) {
	st, ok := snap.Student(studentID)
	if !ok {
		return StudentReport{}, false
	}
	rep := StudentReport{Student: st}
	tr, ok := snap.Teacher(st.TeacherID)
	if !ok {
		return rep, true
	}
	rep.TeacherName = tr.Name
	for _, sub := range tr.Subjects {
		rep.Subjects = append(rep.Subjects, SubjectLine{
			Subject: sub.Name,
			Tally:   SubjectTally(snap, st.TeacherID, sub.Name, st.ID),
		})
	}
	return rep, true
}

// TeacherSummary is a directory line.
type TeacherSummary struct {
	Teacher      attendance.Teacher
	SubjectCount int
	StudentCount int
}

// Directory lists every teacher in registration order.
func Directory(snap *attendance.Snapshot) []TeacherSummary {
	out := make([]TeacherSummary, 0, len(snap.Teachers))
	for _, tr := range snap.Teachers {
		out = append(out, TeacherSummary{
			Teacher:      tr.Teacher,
			SubjectCount: len(tr.Subjects),
			StudentCount: len(snap.StudentsOf(tr.ID)),
		})
	}
	return out
}

// TeacherAlert groups the low subjects of one teacher.
type TeacherAlert struct {
	Teacher attendance.Teacher
	Low     []SubjectPercent
}

// AllLowAttendance returns alerts for every teacher that has at least one low subject.
func AllLowAttendance(snap *attendance.Snapshot, threshold float64) []TeacherAlert {
	var out []TeacherAlert
	for _, tr := range snap.Teachers {
		low := ListLowAttendance(snap, tr.ID, threshold)
		if len(low) > 0 {
			out = append(out, TeacherAlert{Teacher: tr.Teacher, Low: low})
		}
	}
	return out
}
