package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

type memGateway struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
	fail  error
}

func (g *memGateway) Load(_ context.Context) (*Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap, nil
}

func (g *memGateway) Save(_ context.Context, snap *Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.saves++
	g.snap = snap
	return nil
}

func newTestStore(t *testing.T, gw Gateway) *Store {
	t.Helper()
	cfg := DefaultStoreConfig()
	cfg.Location = time.UTC
	cfg.Clock = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }
	return NewStore(cfg, gw)
}

func TestStore_AddTeacherAndSubjects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	created, err := s.AddTeacher(ctx, "t1", "  Mr Rao ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, RoleTeacher, s.Role("t1"))

	teacher, ok := s.Teacher("t1")
	require.True(t, ok)
	assert.Equal(t, "Mr Rao", teacher.Name)

	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	err = s.AddSubject(ctx, "t1", "Math")
	assert.True(t, shared.IsAlreadyExists(err))

	// names are case-sensitive
	require.NoError(t, s.AddSubject(ctx, "t1", "math"))
	assert.Equal(t, []string{"Math", "math"}, s.Subjects("t1"))

	err = s.AddSubject(ctx, "nobody", "Math")
	assert.True(t, shared.IsNotFound(err))

	err = s.AddSubject(ctx, "t1", "   ")
	assert.True(t, shared.IsValidation(err))
}

func TestStore_ReRegisterTeacherKeepsData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.AddTeacher(ctx, "t1", "Old")
	require.NoError(t, err)
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))

	created, err := s.AddTeacher(ctx, "t1", "New")
	require.NoError(t, err)
	assert.False(t, created)

	teacher, _ := s.Teacher("t1")
	assert.Equal(t, "New", teacher.Name)
	assert.Equal(t, []string{"Math"}, s.Subjects("t1"))
}

func TestStore_AddStudent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, err := s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, err)
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))

	st, err := s.AddStudent(ctx, "t1", "Ravi", "+91 98765-43210")
	require.NoError(t, err)
	assert.Equal(t, "919876543210@c.us", st.ID)
	assert.Equal(t, "919876543210", st.Phone)
	assert.Equal(t, RoleStudent, s.Role(st.ID))

	snap := s.Snapshot()
	tr, _ := snap.Teacher("t1")
	sub, _ := tr.Subject("Math")
	assert.Contains(t, sub.Ledger, st.ID)
	assert.Empty(t, sub.Ledger[st.ID])

	_, err = s.AddStudent(ctx, "t1", "Bad", "no digits")
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidPhone)

	_, err = s.AddStudent(ctx, "t1", "Dup", "919876543210")
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestStore_StudentIDOwnedByAnotherTeacher(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "A")
	_, _ = s.AddTeacher(ctx, "t2", "B")

	_, err := s.AddStudent(ctx, "t1", "Ravi", "111")
	require.NoError(t, err)

	_, err = s.AddStudent(ctx, "t2", "Ravi again", "111")
	assert.True(t, shared.IsAlreadyExists(err))

	got, _ := s.Student("111@c.us")
	assert.Equal(t, "t1", got.TeacherID)
	assert.Empty(t, s.StudentsOf("t2"))
}

func TestStore_RoleExclusivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "A")
	_, _ = s.AddTeacher(ctx, "555@c.us", "Teacher with phone id")

	_, err := s.AddStudent(ctx, "t1", "X", "555")
	assert.ErrorIs(t, err, shared.ErrRoleConflict)

	_, err = s.AddStudent(ctx, "t1", "Y", "777")
	require.NoError(t, err)

	_, err = s.AddTeacher(ctx, "777@c.us", "Student wants to teach")
	assert.ErrorIs(t, err, shared.ErrRoleConflict)
	assert.Equal(t, RoleStudent, s.Role("777@c.us"))
}

func TestStore_SetAttendanceLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	st, err := s.AddStudent(ctx, "t1", "Ravi", "111")
	require.NoError(t, err)

	rec := Record{TeacherID: "t1", Subject: "Math", StudentID: st.ID, Date: "2024-03-05", Status: StatusPresent}
	require.NoError(t, s.SetAttendance(ctx, rec))
	rec.Status = StatusAbsent
	require.NoError(t, s.SetAttendance(ctx, rec))

	tr, _ := s.Snapshot().Teacher("t1")
	sub, _ := tr.Subject("Math")
	assert.Equal(t, map[string]Status{"2024-03-05": StatusAbsent}, sub.Ledger[st.ID])
}

func TestStore_SetAttendanceRejects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	_, _ = s.AddTeacher(ctx, "t2", "U")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	other, err := s.AddStudent(ctx, "t2", "Other", "222")
	require.NoError(t, err)

	base := Record{TeacherID: "t1", Subject: "Math", StudentID: other.ID, Date: "2024-03-05", Status: StatusPresent}

	err = s.SetAttendance(ctx, base)
	assert.True(t, shared.IsNotFound(err), "student of another teacher")

	missing := base
	missing.Subject = "Physics"
	assert.True(t, shared.IsNotFound(s.SetAttendance(ctx, missing)))

	badStatus := base
	badStatus.Status = "X"
	assert.True(t, shared.IsValidation(s.SetAttendance(ctx, badStatus)))

	badDate := base
	badDate.Date = "05/03/2024"
	err = s.SetAttendance(ctx, badDate)
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidDate)
}

func TestStore_SetAttendanceBulkSkipsRemoved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	a, _ := s.AddStudent(ctx, "t1", "A", "1")
	b, _ := s.AddStudent(ctx, "t1", "B", "2")

	_, err := s.RemoveStudent(ctx, "t1", b.ID)
	require.NoError(t, err)

	marked, err := s.SetAttendanceBulk(ctx, "t1", "Math", "2024-03-05", StatusHoliday, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, marked)
}

func TestStore_RemoveSubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	require.NoError(t, s.AddSubject(ctx, "t1", "Physics"))
	st, _ := s.AddStudent(ctx, "t1", "A", "1")

	existed, err := s.RemoveSubject(ctx, "t1", "Math")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.RemoveSubject(ctx, "t1", "Math")
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Equal(t, []string{"Physics"}, s.Subjects("t1"))
	_, ok := s.Student(st.ID)
	assert.True(t, ok, "removing a subject keeps students")
}

func TestStore_RemoveStudentCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	require.NoError(t, s.AddSubject(ctx, "t1", "Physics"))
	st, _ := s.AddStudent(ctx, "t1", "A", "1")
	for _, sub := range []string{"Math", "Physics"} {
		require.NoError(t, s.SetAttendance(ctx, Record{TeacherID: "t1", Subject: sub, StudentID: st.ID, Date: "2024-03-05", Status: StatusPresent}))
	}

	existed, err := s.RemoveStudent(ctx, "t2", st.ID)
	require.NoError(t, err)
	assert.False(t, existed, "only the owning teacher may remove")

	existed, err = s.RemoveStudent(ctx, "t1", st.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	tr, _ := s.Snapshot().Teacher("t1")
	for _, sub := range tr.Subjects {
		assert.NotContains(t, sub.Ledger, st.ID)
	}
	assert.Equal(t, RoleNone, s.Role(st.ID))
}

func TestStore_RemoveTeacherCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	_, _ = s.AddTeacher(ctx, "t2", "U")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	mine, _ := s.AddStudent(ctx, "t1", "A", "1")
	theirs, _ := s.AddStudent(ctx, "t2", "B", "2")

	existed, err := s.RemoveTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, existed)

	assert.Equal(t, RoleNone, s.Role("t1"))
	assert.Equal(t, RoleNone, s.Role(mine.ID))
	assert.Equal(t, RoleStudent, s.Role(theirs.ID))
	assert.Nil(t, s.Subjects("t1"))

	existed, err = s.RemoveTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_CheckpointAfterEachMutation(t *testing.T) {
	ctx := context.Background()
	gw := &memGateway{}
	s := newTestStore(t, gw)

	_, err := s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, err)
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	assert.Equal(t, 2, gw.saves)
	assert.Equal(t, uint64(2), gw.snap.Version)

	// no-op removal does not checkpoint
	_, err = s.RemoveSubject(ctx, "t1", "Nope")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.saves)
}

func TestStore_DurabilityFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	gw := &memGateway{fail: errors.New("disk full")}
	s := newTestStore(t, gw)

	_, err := s.AddTeacher(ctx, "t1", "T")
	require.Error(t, err)
	assert.True(t, shared.IsDurability(err))
	assert.Equal(t, RoleTeacher, s.Role("t1"), "mutation is not rolled back")

	st, err := s.AddStudent(ctx, "t1", "A", "12")
	assert.True(t, shared.IsDurability(err))
	assert.Equal(t, "12@c.us", st.ID)

	gw.fail = nil
	require.NoError(t, s.Checkpoint(ctx))
	require.NotNil(t, gw.snap)
	assert.Len(t, gw.snap.Students, 1)
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := &memGateway{}
	s := newTestStore(t, gw)
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	st, _ := s.AddStudent(ctx, "t1", "A", "1")
	require.NoError(t, s.SetAttendance(ctx, Record{TeacherID: "t1", Subject: "Math", StudentID: st.ID, Date: "2024-03-05", Status: StatusPresent}))

	restored := newTestStore(t, gw)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, s.Snapshot(), restored.Snapshot())

	// further mutations continue the version sequence
	require.NoError(t, restored.AddSubject(ctx, "t1", "Physics"))
	assert.Equal(t, uint64(5), gw.snap.Version)
}

func TestStore_RestoreDropsOrphans(t *testing.T) {
	gw := &memGateway{snap: &Snapshot{
		Version: 7,
		Teachers: []TeacherRecord{{
			Teacher: Teacher{ID: "t1", Name: "T"},
			Subjects: []SubjectRecord{{Name: "Math", Ledger: Ledger{
				"1@c.us":     {"2024-03-05": StatusPresent},
				"ghost@c.us": {"2024-03-05": StatusAbsent},
			}}},
		}},
		Students: []Student{
			{ID: "1@c.us", Name: "A", TeacherID: "t1"},
			{ID: "2@c.us", Name: "Orphan", TeacherID: "gone"},
		},
	}}
	s := newTestStore(t, gw)
	require.NoError(t, s.Restore(context.Background()))

	assert.Equal(t, RoleStudent, s.Role("1@c.us"))
	assert.Equal(t, RoleNone, s.Role("2@c.us"))
	tr, _ := s.Snapshot().Teacher("t1")
	assert.NotContains(t, tr.Subjects[0].Ledger, "ghost@c.us")
}

func TestStore_Today(t *testing.T) {
	cfg := DefaultStoreConfig()
	loc := time.FixedZone("IST", 5*3600+1800)
	cfg.Location = loc
	cfg.Clock = func() time.Time { return time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC) }
	s := NewStore(cfg, nil)

	assert.Equal(t, "2024-03-06", s.Today())
}

func TestStore_ConcurrentMarking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &memGateway{})
	_, _ = s.AddTeacher(ctx, "t1", "T")
	require.NoError(t, s.AddSubject(ctx, "t1", "Math"))
	st, _ := s.AddStudent(ctx, "t1", "A", "1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := StatusPresent
			if i%2 == 0 {
				status = StatusAbsent
			}
			_ = s.SetAttendance(ctx, Record{TeacherID: "t1", Subject: "Math", StudentID: st.ID, Date: "2024-03-05", Status: status})
		}(i)
	}
	wg.Wait()

	tr, _ := s.Snapshot().Teacher("t1")
	sub, _ := tr.Subject("Math")
	assert.Len(t, sub.Ledger[st.ID], 1)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" p ")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, st)

	_, err = ParseStatus("present")
	assert.True(t, shared.IsValidation(err))
}
