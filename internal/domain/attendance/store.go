package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// StoreConfig настраивает реестр.
type StoreConfig struct {
	// IDSuffix дописывается к цифрам телефона студента.
	IDSuffix string

	// Location определяет, какой календарный день считается "сегодня".
	Location *time.Location

	// Clock - источник текущего времени (подменяется в тестах).
	Clock func() time.Time

	// SaveTimeout ограничивает одну запись снимка. 0 - без ограничения.
	SaveTimeout time.Duration
}

// DefaultStoreConfig возвращает конфигурацию по умолчанию.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		IDSuffix:    DefaultIDSuffix,
		Location:    time.Local,
		Clock:       time.Now,
		SaveTimeout: 10 * time.Second,
	}
}

// Store - каноничный реестр преподавателей, предметов, студентов и отметок.
//
// Все мутации выполняются под одной блокировкой, поэтому каскадное удаление
// преподавателя никогда не перемежается с записью для этого преподавателя.
// После каждой успешной мутации снимок отправляется в Gateway вне блокировки.
// Ошибка сохранения возвращается как *shared.DomainError с Kind == ErrDurability:
// изменение при этом уже применено и не откатывается.
type Store struct {
	mu           sync.RWMutex
	teachers     map[string]*teacherState
	teacherOrder []string
	students     map[string]*Student
	studentOrder []string
	version      uint64

	gateway Gateway
	saveMu  sync.Mutex
	saved   uint64

	config StoreConfig
}

type teacherState struct {
	Teacher
	subjects []*subjectState
}

type subjectState struct {
	name   string
	ledger Ledger
}

func (t *teacherState) subject(name string) (*subjectState, int) {
	for i, sub := range t.subjects {
		if sub.name == name {
			return sub, i
		}
	}
	return nil, -1
}

// NewStore создаёт пустой реестр. gateway может быть nil (без сохранения).
func NewStore(config StoreConfig, gateway Gateway) *Store {
	defaults := DefaultStoreConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	return &Store{
		teachers: make(map[string]*teacherState),
		students: make(map[string]*Student),
		gateway:  gateway,
		config:   config,
	}
}

// Today возвращает текущую дату в формате YYYY-MM-DD.
func (s *Store) Today() string {
	return s.config.Clock().In(s.config.Location).Format(DateLayout)
}

// IDSuffix возвращает суффикс ID студентов.
func (s *Store) IDSuffix() string {
	return s.config.IDSuffix
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

// AddTeacher регистрирует преподавателя. Повторная регистрация меняет имя,
// сохраняя данные; created показывает, был ли преподаватель создан.
// ID, уже зарегистрированный как студент, отклоняется.
func (s *Store) AddTeacher(ctx context.Context, id, name string) (created bool, err error) {
	name, err = cleanName(name)
	if err != nil {
		return false, err
	}
	err = s.mutate(ctx, "AddTeacher", func() (bool, error) {
		if _, isStudent := s.students[id]; isStudent {
			return false, shared.ErrRoleConflict
		}
		if t, ok := s.teachers[id]; ok {
			if t.Name == name {
				return false, nil
			}
			t.Name = name
			return true, nil
		}
		s.teachers[id] = &teacherState{Teacher: Teacher{ID: id, Name: name, RegisteredAt: s.now()}}
		s.teacherOrder = append(s.teacherOrder, id)
		created = true
		return true, nil
	})
	return created, err
}

// AddSubject добавляет предмет с пустым журналом.
// Имена уникальны в пределах преподавателя с учётом регистра.
func (s *Store) AddSubject(ctx context.Context, teacherID, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "AddSubject", func() (bool, error) {
		t, ok := s.teachers[teacherID]
		if !ok {
			return false, shared.ErrTeacherNotFound
		}
		if _, idx := t.subject(name); idx >= 0 {
			return false, shared.ErrSubjectAlreadyExists
		}
		ledger := make(Ledger)
		for _, studentID := range s.studentOrder {
			if s.students[studentID].TeacherID == teacherID {
				ledger[studentID] = make(map[string]Status)
			}
		}
		t.subjects = append(t.subjects, &subjectState{name: name, ledger: ledger})
		return true, nil
	})
}

// AddStudent регистрирует студента по номеру телефона.
// ID получается из цифр номера; номер без цифр - ошибка валидации.
// ID, который уже принадлежит преподавателю или любому студенту, отклоняется.
func (s *Store) AddStudent(ctx context.Context, teacherID, name, rawPhone string) (Student, error) {
	name, err := cleanName(name)
	if err != nil {
		return Student{}, err
	}
	id, digits, err := StudentIDFromPhone(rawPhone, s.config.IDSuffix)
	if err != nil {
		return Student{}, err
	}

	var created Student
	err = s.mutate(ctx, "AddStudent", func() (bool, error) {
		t, ok := s.teachers[teacherID]
		if !ok {
			return false, shared.ErrTeacherNotFound
		}
		if _, isTeacher := s.teachers[id]; isTeacher {
			return false, shared.ErrRoleConflict
		}
		if _, exists := s.students[id]; exists {
			return false, shared.ErrStudentAlreadyExists
		}
		created = Student{
			ID:           id,
			Name:         name,
			Phone:        digits,
			TeacherID:    teacherID,
			RegisteredAt: s.now(),
		}
		st := created
		s.students[id] = &st
		s.studentOrder = append(s.studentOrder, id)
		for _, sub := range t.subjects {
			sub.ledger[id] = make(map[string]Status)
		}
		return true, nil
	})
	if err != nil && !shared.IsDurability(err) {
		return Student{}, err
	}
	return created, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Attendance
// ─────────────────────────────────────────────────────────────────────────────

// SetAttendance записывает отметку. Последняя запись побеждает.
func (s *Store) SetAttendance(ctx context.Context, rec Record) error {
	if !rec.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	if err := ValidateDate(rec.Date); err != nil {
		return err
	}
	return s.mutate(ctx, "SetAttendance", func() (bool, error) {
		sub, err := s.ledgerFor(rec.TeacherID, rec.Subject)
		if err != nil {
			return false, err
		}
		if !s.ownsStudent(rec.TeacherID, rec.StudentID) {
			return false, shared.ErrStudentNotFound
		}
		days := sub.ledger[rec.StudentID]
		if days == nil {
			days = make(map[string]Status)
			sub.ledger[rec.StudentID] = days
		}
		days[rec.Date] = rec.Status
		return true, nil
	})
}

// SetAttendanceBulk отмечает всех перечисленных студентов одним статусом
// и сохраняет один снимок. Студенты, которых уже нет у преподавателя,
// пропускаются; marked содержит фактически отмеченных.
func (s *Store) SetAttendanceBulk(ctx context.Context, teacherID, subject, date string, status Status, studentIDs []string) (marked []string, err error) {
	if !status.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	err = s.mutate(ctx, "SetAttendanceBulk", func() (bool, error) {
		sub, err := s.ledgerFor(teacherID, subject)
		if err != nil {
			return false, err
		}
		for _, id := range studentIDs {
			if !s.ownsStudent(teacherID, id) {
				continue
			}
			days := sub.ledger[id]
			if days == nil {
				days = make(map[string]Status)
				sub.ledger[id] = days
			}
			days[date] = status
			marked = append(marked, id)
		}
		return len(marked) > 0, nil
	})
	if err != nil && !shared.IsDurability(err) {
		return nil, err
	}
	return marked, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Removal (cascades)
// ─────────────────────────────────────────────────────────────────────────────

// RemoveSubject удаляет предмет вместе с журналом.
func (s *Store) RemoveSubject(ctx context.Context, teacherID, name string) (existed bool, err error) {
	err = s.mutate(ctx, "RemoveSubject", func() (bool, error) {
		t, ok := s.teachers[teacherID]
		if !ok {
			return false, nil
		}
		_, idx := t.subject(name)
		if idx < 0 {
			return false, nil
		}
		t.subjects = append(t.subjects[:idx], t.subjects[idx+1:]...)
		existed = true
		return true, nil
	})
	return existed, err
}

// RemoveStudent удаляет студента преподавателя и его записи во всех предметах.
func (s *Store) RemoveStudent(ctx context.Context, teacherID, studentID string) (existed bool, err error) {
	err = s.mutate(ctx, "RemoveStudent", func() (bool, error) {
		if !s.ownsStudent(teacherID, studentID) {
			return false, nil
		}
		s.dropStudentLocked(studentID)
		for _, sub := range s.teachers[teacherID].subjects {
			delete(sub.ledger, studentID)
		}
		existed = true
		return true, nil
	})
	return existed, err
}

// RemoveTeacher удаляет преподавателя, все его предметы, студентов и отметки.
// Удалённые студенты теряют роль.
func (s *Store) RemoveTeacher(ctx context.Context, teacherID string) (existed bool, err error) {
	err = s.mutate(ctx, "RemoveTeacher", func() (bool, error) {
		if _, ok := s.teachers[teacherID]; !ok {
			return false, nil
		}
		delete(s.teachers, teacherID)
		s.teacherOrder = removeID(s.teacherOrder, teacherID)
		for _, id := range append([]string(nil), s.studentOrder...) {
			if s.students[id].TeacherID == teacherID {
				s.dropStudentLocked(id)
			}
		}
		existed = true
		return true, nil
	})
	return existed, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// Role возвращает роль идентификатора.
func (s *Store) Role(id string) Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.teachers[id]; ok {
		return RoleTeacher
	}
	if _, ok := s.students[id]; ok {
		return RoleStudent
	}
	return RoleNone
}

// Teacher возвращает преподавателя по ID.
func (s *Store) Teacher(id string) (Teacher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[id]
	if !ok {
		return Teacher{}, false
	}
	return t.Teacher, true
}

// Teachers возвращает всех преподавателей в порядке регистрации.
func (s *Store) Teachers() []Teacher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Teacher, 0, len(s.teacherOrder))
	for _, id := range s.teacherOrder {
		out = append(out, s.teachers[id].Teacher)
	}
	return out
}

// Student возвращает студента по ID.
func (s *Store) Student(id string) (Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return Student{}, false
	}
	return *st, true
}

// StudentsOf возвращает студентов преподавателя в порядке регистрации.
func (s *Store) StudentsOf(teacherID string) []Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Student
	for _, id := range s.studentOrder {
		if st := s.students[id]; st.TeacherID == teacherID {
			out = append(out, *st)
		}
	}
	return out
}

// Subjects возвращает названия предметов преподавателя в порядке добавления.
func (s *Store) Subjects(teacherID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[teacherID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.subjects))
	for _, sub := range t.subjects {
		out = append(out, sub.name)
	}
	return out
}

// HasSubject проверяет существование предмета.
func (s *Store) HasSubject(teacherID, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[teacherID]
	if !ok {
		return false
	}
	_, idx := t.subject(name)
	return idx >= 0
}

// Snapshot возвращает глубокую копию текущего состояния.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence
// ─────────────────────────────────────────────────────────────────────────────

// Restore загружает последний снимок из Gateway, заменяя текущее состояние.
// Записи журнала для чужих или несуществующих студентов отбрасываются.
func (s *Store) Restore(ctx context.Context) error {
	if s.gateway == nil {
		return nil
	}
	snap, err := s.gateway.Load(ctx)
	if err != nil {
		return shared.WrapError("attendance", "Restore", shared.ErrDurability, "failed to load snapshot", err)
	}
	if snap == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teachers = make(map[string]*teacherState, len(snap.Teachers))
	s.teacherOrder = s.teacherOrder[:0]
	s.students = make(map[string]*Student, len(snap.Students))
	s.studentOrder = s.studentOrder[:0]

	for _, tr := range snap.Teachers {
		if _, dup := s.teachers[tr.ID]; dup {
			continue
		}
		s.teachers[tr.ID] = &teacherState{Teacher: tr.Teacher}
		s.teacherOrder = append(s.teacherOrder, tr.ID)
	}
	for _, st := range snap.Students {
		if _, ok := s.teachers[st.TeacherID]; !ok {
			continue
		}
		if _, isTeacher := s.teachers[st.ID]; isTeacher {
			continue
		}
		if _, dup := s.students[st.ID]; dup {
			continue
		}
		copied := st
		s.students[st.ID] = &copied
		s.studentOrder = append(s.studentOrder, st.ID)
	}
	for _, tr := range snap.Teachers {
		t := s.teachers[tr.ID]
		for _, sub := range tr.Subjects {
			if _, idx := t.subject(sub.Name); idx >= 0 {
				continue
			}
			ledger := make(Ledger)
			for studentID, days := range sub.Ledger {
				if !s.ownsStudent(tr.ID, studentID) {
					continue
				}
				copied := make(map[string]Status, len(days))
				for date, st := range days {
					if st.IsValid() {
						copied[date] = st
					}
				}
				ledger[studentID] = copied
			}
			t.subjects = append(t.subjects, &subjectState{name: sub.Name, ledger: ledger})
		}
	}

	s.version = snap.Version
	s.saveMu.Lock()
	s.saved = snap.Version
	s.saveMu.Unlock()
	return nil
}

// Checkpoint принудительно сохраняет текущее состояние (например, при остановке).
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return s.checkpoint(ctx, "Checkpoint", snap)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// mutate выполняет fn под блокировкой. Если fn сообщает об изменении,
// версия увеличивается и снимок сохраняется вне блокировки.
func (s *Store) mutate(ctx context.Context, op string, fn func() (changed bool, err error)) error {
	s.mu.Lock()
	changed, err := fn()
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.checkpoint(ctx, op, snap)
}

func (s *Store) checkpoint(ctx context.Context, op string, snap *Snapshot) error {
	if s.gateway == nil {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	// Более новый снимок уже сохранён.
	if snap.Version <= s.saved {
		return nil
	}

	if s.config.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SaveTimeout)
		defer cancel()
	}

	if err := s.gateway.Save(ctx, snap); err != nil {
		return shared.WrapError("attendance", op, shared.ErrDurability, "changes applied but not saved", err)
	}
	s.saved = snap.Version
	return nil
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Version:  s.version,
		Teachers: make([]TeacherRecord, 0, len(s.teacherOrder)),
		Students: make([]Student, 0, len(s.studentOrder)),
	}
	for _, id := range s.teacherOrder {
		t := s.teachers[id]
		rec := TeacherRecord{Teacher: t.Teacher, Subjects: make([]SubjectRecord, 0, len(t.subjects))}
		for _, sub := range t.subjects {
			rec.Subjects = append(rec.Subjects, SubjectRecord{Name: sub.name, Ledger: sub.ledger.clone()})
		}
		snap.Teachers = append(snap.Teachers, rec)
	}
	for _, id := range s.studentOrder {
		snap.Students = append(snap.Students, *s.students[id])
	}
	return snap
}

func (s *Store) ledgerFor(teacherID, subject string) (*subjectState, error) {
	t, ok := s.teachers[teacherID]
	if !ok {
		return nil, shared.ErrTeacherNotFound
	}
	sub, idx := t.subject(subject)
	if idx < 0 {
		return nil, shared.ErrSubjectNotFound
	}
	return sub, nil
}

func (s *Store) ownsStudent(teacherID, studentID string) bool {
	st, ok := s.students[studentID]
	return ok && st.TeacherID == teacherID
}

func (s *Store) dropStudentLocked(id string) {
	delete(s.students, id)
	s.studentOrder = removeID(s.studentOrder, id)
}

func (s *Store) now() time.Time {
	return s.config.Clock().UTC()
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
