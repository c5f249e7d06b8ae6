package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/infrastructure/messaging"
)

const (
	teacherID = "t1@c.us"
	aliceID   = "15550001@c.us"
	bobID     = "15550002@c.us"
	today     = "2024-03-05"
)

type flakyGateway struct {
	mu    sync.Mutex
	fail  error
	saves int
}

func (g *flakyGateway) Load(_ context.Context) (*attendance.Snapshot, error) {
	return nil, nil
}

func (g *flakyGateway) Save(_ context.Context, _ *attendance.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.saves++
	return nil
}

func (g *flakyGateway) setFail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

type fixture struct {
	t        *testing.T
	router   *Router
	store    *attendance.Store
	sessions *dialogue.MemoryBackend
	tracker  *dialogue.Tracker
	sender   *messaging.MemorySender
	gateway  *flakyGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := attendance.DefaultStoreConfig()
	cfg.Location = time.UTC
	cfg.Clock = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }

	gw := &flakyGateway{}
	store := attendance.NewStore(cfg, gw)
	backend := dialogue.NewMemoryBackend()
	tracker := dialogue.NewTracker(backend, nil)
	sender := messaging.NewMemorySender()

	return &fixture{
		t:        t,
		router:   NewRouter(store, tracker, sender, RouterConfig{}),
		store:    store,
		sessions: backend,
		tracker:  tracker,
		sender:   sender,
		gateway:  gw,
	}
}

func (f *fixture) send(user, text string) Reply {
	return f.router.Handle(context.Background(), Inbound{SenderID: user, Text: text})
}

func (f *fixture) stage(user string) dialogue.Stage {
	s, err := f.tracker.Current(context.Background(), user)
	require.NoError(f.t, err)
	return s.Stage
}

// withClass registers a teacher with subject Math and students Alice and Bob.
func (f *fixture) withClass() {
	f.t.Helper()
	f.send(teacherID, "/register")
	f.send(teacherID, "Dr. Smith")
	f.send(teacherID, "/add")
	f.send(teacherID, "Math")
	for _, st := range []struct{ name, phone string }{
		{"Alice", "+1 555 0001"},
		{"Bob", "+1 555-0002"},
	} {
		f.send(teacherID, "/addStudent")
		f.send(teacherID, st.name)
		reply := f.send(teacherID, st.phone)
		require.Contains(f.t, reply.Text, "has been added successfully")
	}
}

func (f *fixture) ledger(subject string) attendance.Ledger {
	snap := f.store.Snapshot()
	tr, ok := snap.Teacher(teacherID)
	require.True(f.t, ok)
	sub, ok := tr.Subject(subject)
	require.True(f.t, ok)
	return sub.Ledger
}

// ══════════════════════════════════════════════════════════════════════════════
// SCENARIOS
// ══════════════════════════════════════════════════════════════════════════════

func TestRouter_RegisterTeacher(t *testing.T) {
	f := newFixture(t)

	reply := f.send(teacherID, "/register")
	assert.Contains(t, reply.Text, "Teacher Registration")
	assert.Equal(t, dialogue.StageAwaitingTeacherName, f.stage(teacherID))

	reply = f.send(teacherID, "Dr. Smith")
	assert.Contains(t, reply.Text, "Dr. Smith")

	teacher, ok := f.store.Teacher(teacherID)
	require.True(t, ok)
	assert.Equal(t, "Dr. Smith", teacher.Name)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRouter_DuplicateSubject(t *testing.T) {
	f := newFixture(t)
	f.send(teacherID, "/register")
	f.send(teacherID, "Dr. Smith")

	assert.Contains(t, f.send(teacherID, "1").Text, "Add New Subject")
	assert.Contains(t, f.send(teacherID, "Math").Text, `Subject "Math" added`)

	f.send(teacherID, "/add")
	reply := f.send(teacherID, "Math")
	assert.Contains(t, reply.Text, "already exists")
	assert.Equal(t, dialogue.StageIdle, f.stage(teacherID))
	assert.Equal(t, []string{"Math"}, f.store.Subjects(teacherID))
}

func TestRouter_MarkSelectedStudent(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Contains(t, f.send(teacherID, "3").Text, "Choose Subject for Attendance")
	assert.Contains(t, f.send(teacherID, "subject.1").Text, "Attendance List - Math")
	assert.Equal(t, dialogue.StageAwaitingStudentSelect, f.stage(teacherID))

	assert.Contains(t, f.send(teacherID, "2").Text, "Bob")
	assert.Equal(t, dialogue.StageAwaitingAttendanceState, f.stage(teacherID))

	reply := f.send(teacherID, "P")
	assert.Contains(t, reply.Text, "Marked Bob as Present for Math")
	assert.Contains(t, reply.Text, "Notification sent!")
	assert.Equal(t, dialogue.StageAwaitingStudentSelect, f.stage(teacherID))

	ledger := f.ledger("Math")
	assert.Equal(t, attendance.StatusPresent, ledger[bobID][today])
	assert.Empty(t, ledger[aliceID])

	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, bobID, msgs[0].Recipient)
	assert.Contains(t, msgs[0].Text, "Attendance Update")
	assert.Contains(t, msgs[0].Text, "Teacher: Dr. Smith")
}

func TestRouter_RemoveStudentKeepsOthers(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")
	f.send(teacherID, "student.1 P")
	f.send(teacherID, "student.2 A")
	f.send(teacherID, "done")

	assert.Contains(t, f.send(teacherID, "6").Text, "What would you like to remove?")
	assert.Contains(t, f.send(teacherID, "B").Text, "Remove Student")
	reply := f.send(teacherID, "remove.student.2")
	assert.Contains(t, reply.Text, "Bob and all their attendance records were removed")

	ledger := f.ledger("Math")
	assert.Equal(t, attendance.StatusPresent, ledger[aliceID][today])
	assert.NotContains(t, ledger, bobID)
	assert.Equal(t, attendance.RoleNone, f.store.Role(bobID))
}

// ══════════════════════════════════════════════════════════════════════════════
// MARKING LOOP
// ══════════════════════════════════════════════════════════════════════════════

func TestRouter_BulkMarking(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")

	assert.Contains(t, f.send(teacherID, "bulk").Text, "Bulk Attendance - Math")
	assert.Equal(t, dialogue.StageAwaitingBulkStatus, f.stage(teacherID))

	reply := f.send(teacherID, "a")
	assert.Contains(t, reply.Text, "Bulk Attendance Complete!")
	assert.Contains(t, reply.Text, "Students marked: 2")
	assert.Contains(t, reply.Text, "Notifications sent: 2/2")
	assert.Equal(t, dialogue.StageAwaitingStudentSelect, f.stage(teacherID))

	ledger := f.ledger("Math")
	assert.Equal(t, attendance.StatusAbsent, ledger[aliceID][today])
	assert.Equal(t, attendance.StatusAbsent, ledger[bobID][today])

	reply = f.send(teacherID, "bulk h")
	assert.Contains(t, reply.Text, "Status: Holiday")
	assert.Equal(t, attendance.StatusHoliday, f.ledger("Math")[bobID][today])

	assert.Contains(t, f.send(teacherID, "done").Text, "Finished marking Math")
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRouter_MarkingRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")

	assert.Equal(t, msgInvalidSelection, f.send(teacherID, "9").Text)
	assert.Equal(t, selectionHint(), f.send(teacherID, "whatever").Text)
	assert.Equal(t, dialogue.StageAwaitingStudentSelect, f.stage(teacherID))

	f.send(teacherID, "1")
	assert.Equal(t, statusHint(), f.send(teacherID, "X").Text)
	assert.Equal(t, dialogue.StageAwaitingAttendanceState, f.stage(teacherID))
	assert.Empty(t, f.ledger("Math")[aliceID])
}

func TestRouter_MarkingWhileIdle(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Equal(t, msgNoMarkingList, f.send(teacherID, "student.1 P").Text)
	assert.Empty(t, f.ledger("Math")[aliceID])
}

func TestRouter_NotificationFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.sender.Fail = errors.New("gateway offline")

	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")
	reply := f.send(teacherID, "student.1 P")

	assert.Contains(t, reply.Text, "Marked Alice as Present")
	assert.Contains(t, reply.Text, "Notification failed")
	assert.Equal(t, attendance.StatusPresent, f.ledger("Math")[aliceID][today])
}

type stuckSender struct{}

func (stuckSender) Send(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRouter_SlowNotificationIsBounded(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.router = NewRouter(f.store, f.tracker, stuckSender{}, RouterConfig{
		NotifyTimeout:     50 * time.Millisecond,
		NotifyConcurrency: 1,
	})

	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")

	start := time.Now()
	reply := f.send(teacherID, "student.1 P")
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, reply.Text, "Marked Alice as Present")
	assert.Contains(t, reply.Text, "Notification failed")

	start = time.Now()
	reply = f.send(teacherID, "bulk A")
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, reply.Text, "Notifications sent: 0/2")
	assert.Equal(t, attendance.StatusAbsent, f.ledger("Math")[bobID][today])
}

// ══════════════════════════════════════════════════════════════════════════════
// GRAMMAR SCOPING & ROLES
// ══════════════════════════════════════════════════════════════════════════════

func TestRouter_LettersNeedTheirMenu(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Equal(t, msgMenuClosed, f.send(teacherID, "A").Text)

	f.send(teacherID, "2")
	assert.Contains(t, f.send(teacherID, "B").Text, "Alice (15550001)")

	f.send(teacherID, "6")
	assert.Contains(t, f.send(teacherID, "A").Text, `remove.subject.1`)
	assert.Contains(t, f.send(teacherID, "remove.subject.1").Text, `Subject "Math" and its attendance records were removed`)
	assert.Empty(t, f.store.Subjects(teacherID))
}

func TestRouter_RoleGating(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Equal(t, msgPermissionDenied, f.send("stranger", "1").Text)
	assert.Equal(t, msgPermissionDenied, f.send(aliceID, "/mark").Text)
	assert.Equal(t, roleConflictText(), f.send(aliceID, "/register").Text)
	assert.Equal(t, attendance.RoleStudent, f.store.Role(aliceID))

	assert.Equal(t, msgNotStudent, f.send(teacherID, "/myattendance").Text)
	assert.Contains(t, f.send(aliceID, "/myattendance").Text, "Teacher: Dr. Smith")

	assert.Contains(t, f.send("stranger", "/start").Text, "Welcome to Attendance Bot")
}

func TestRouter_PhoneRetries(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	f.send(teacherID, "/addStudent")
	f.send(teacherID, "Carl")
	assert.Equal(t, phoneInvalidText(), f.send(teacherID, "no digits here").Text)
	assert.Equal(t, dialogue.StageAwaitingStudentPhone, f.stage(teacherID))

	reply := f.send(teacherID, "+1 (555) 0001")
	assert.Contains(t, reply.Text, "already registered")
	assert.Equal(t, dialogue.StageAwaitingStudentPhone, f.stage(teacherID))

	reply = f.send(teacherID, "+1 555 0003")
	assert.Contains(t, reply.Text, `Student "Carl" has been added`)
	assert.Len(t, f.store.StudentsOf(teacherID), 3)
}

func TestRouter_ResetAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Equal(t, Reply{}, f.send(teacherID, "   "))
	assert.Equal(t, msgUnknown, f.send(teacherID, "hello").Text)

	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")
	assert.Equal(t, msgCancelled, f.send(teacherID, "/cancel").Text)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRouter_SelectionToken(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	reply := f.router.Handle(context.Background(), Inbound{SenderID: teacherID, Selection: "mark"})
	assert.Contains(t, reply.Text, "Choose Subject for Attendance")

	reply = f.router.Handle(context.Background(), Inbound{SenderID: teacherID, Text: "ignored", Selection: "subject-1"})
	assert.Contains(t, reply.Text, "Attendance List - Math")
}

func TestRouter_IndependentDialogues(t *testing.T) {
	f := newFixture(t)

	f.send("t1", "/register")
	f.send("t2", "/register")
	f.send("t1", "Ms Alpha")
	f.send("t2", "Mr Beta")

	one, _ := f.store.Teacher("t1")
	two, _ := f.store.Teacher("t2")
	assert.Equal(t, "Ms Alpha", one.Name)
	assert.Equal(t, "Mr Beta", two.Name)
}

// ══════════════════════════════════════════════════════════════════════════════
// DIALOGUE PRECEDENCE & LIST SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRouter_ActiveDialogueConsumesCommandText(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	f.send(teacherID, "/add")
	reply := f.send(teacherID, "3")
	assert.Contains(t, reply.Text, `Subject "3" added`)
	assert.NotContains(t, reply.Text, "Choose Subject for Attendance")
	assert.Equal(t, dialogue.StageIdle, f.stage(teacherID))
	assert.Equal(t, []string{"Math", "3"}, f.store.Subjects(teacherID))

	f.send("t2@c.us", "/register")
	reply = f.send("t2@c.us", "/start")
	assert.Contains(t, reply.Text, "Welcome /start!")
	assert.NotContains(t, reply.Text, "Welcome to Attendance Bot")
	teacher, ok := f.store.Teacher("t2@c.us")
	require.True(t, ok)
	assert.Equal(t, "/start", teacher.Name)
}

func TestRouter_RemoveSubjectUsesListSnapshot(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	for _, name := range []string{"Physics", "Chem"} {
		f.send(teacherID, "/add")
		f.send(teacherID, name)
	}

	f.send(teacherID, "6")
	assert.Contains(t, f.send(teacherID, "A").Text, `2. Physics: Send "remove.subject.2"`)

	assert.Contains(t, f.send(teacherID, "remove.subject.1").Text, `Subject "Math" and its attendance records were removed`)
	assert.Contains(t, f.send(teacherID, "remove.subject.2").Text, `Subject "Physics" and its attendance records were removed`)
	assert.Equal(t, []string{"Chem"}, f.store.Subjects(teacherID))

	assert.Equal(t, subjectRemovedText("Math", false), f.send(teacherID, "remove.subject.1").Text)
	assert.Equal(t, msgInvalidSelection, f.send(teacherID, "remove.subject.4").Text)

	// Unrelated commands leave the list addressable.
	f.send(teacherID, "/help")
	assert.Contains(t, f.send(teacherID, "remove.subject.3").Text, `Subject "Chem" and its attendance records were removed`)
	assert.Empty(t, f.store.Subjects(teacherID))
}

func TestRouter_RemoveStudentUsesListSnapshot(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	f.send(teacherID, "6")
	f.send(teacherID, "B")
	assert.Contains(t, f.send(teacherID, "remove.student.1").Text, "Alice and all their attendance records were removed")
	assert.Contains(t, f.send(teacherID, "remove.student.2").Text, "Bob and all their attendance records were removed")
	assert.Equal(t, studentRemovedText("That student", false), f.send(teacherID, "remove.student.1").Text)
	assert.Empty(t, f.store.StudentsOf(teacherID))
}

func TestRouter_AddressWithoutItsListIsRejected(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.send(teacherID, "/add")
	f.send(teacherID, "Physics")

	assert.Contains(t, f.send(teacherID, "3").Text, "Choose Subject for Attendance")
	assert.Equal(t, openListFirstText(dialogue.MenuRemoveSubjects), f.send(teacherID, "remove.subject.1").Text)
	assert.Equal(t, openListFirstText(dialogue.MenuRemoveStudents), f.send(teacherID, "remove.student.1").Text)
	assert.Equal(t, openListFirstText(dialogue.MenuReports), f.send(teacherID, "report.1").Text)
	assert.Equal(t, []string{"Math", "Physics"}, f.store.Subjects(teacherID))
	assert.Len(t, f.store.StudentsOf(teacherID), 2)

	assert.Contains(t, f.send(teacherID, "subject.2").Text, "Attendance List - Physics")
}

func TestRouter_SelectionSurvivesRemovalElsewhere(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.send(teacherID, "/add")
	f.send(teacherID, "Physics")

	f.send(teacherID, "3")
	_, err := f.store.RemoveSubject(context.Background(), teacherID, "Math")
	require.NoError(t, err)

	assert.Contains(t, f.send(teacherID, "subject.2").Text, "Attendance List - Physics")
	f.send(teacherID, "done")
	assert.Equal(t, openListFirstText(dialogue.MenuMarkSubjects), f.send(teacherID, "subject.1").Text)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS, DURABILITY, ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

func TestRouter_Reports(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Contains(t, f.send(teacherID, "/alert").Text, "below 75%")

	f.send(teacherID, "3")
	f.send(teacherID, "subject.1")
	f.send(teacherID, "bulk P")
	f.send(teacherID, "done")

	assert.Contains(t, f.send(teacherID, "4").Text, "1. Math: 100.0% (✅ Good)")
	reply := f.send(teacherID, "report.1")
	assert.Contains(t, reply.Text, "Attendance Report - Math")
	assert.Contains(t, reply.Text, "👤 Bob: 100.0%")

	assert.Contains(t, f.send(teacherID, "/alert").Text, "All your subjects are at or above 75%")
	assert.Contains(t, f.send(teacherID, "/teachers").Text, "Dr. Smith: 1 subjects, 2 students")
}

func TestRouter_DurabilityAdvisory(t *testing.T) {
	f := newFixture(t)
	f.withClass()
	f.gateway.setFail(errors.New("disk full"))

	f.send(teacherID, "/add")
	reply := f.send(teacherID, "Physics")

	assert.Contains(t, reply.Text, `Subject "Physics" added`)
	assert.Equal(t, []string{msgDurability}, reply.Notices)
	assert.Equal(t, []string{"Math", "Physics"}, f.store.Subjects(teacherID))
}

func TestRouter_DeleteAccount(t *testing.T) {
	f := newFixture(t)
	f.withClass()

	assert.Equal(t, msgDeleteNotOpen, f.send(teacherID, "confirm.delete.account").Text)
	assert.Equal(t, attendance.RoleTeacher, f.store.Role(teacherID))

	assert.Equal(t, msgDeletePrompt, f.send(teacherID, "7").Text)
	assert.Contains(t, f.send(teacherID, "confirm.delete.account").Text, "were deleted")

	assert.Equal(t, attendance.RoleNone, f.store.Role(teacherID))
	assert.Equal(t, attendance.RoleNone, f.store.Role(aliceID))
	assert.Empty(t, f.store.Teachers())
}
