package attendance

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - неизменяемая копия всего реестра. Её сохраняет Gateway
// и по ней считает отчёты пакет report.
type Snapshot struct {
	// Version растёт на каждой мутации; устаревшие версии не сохраняются.
	Version  uint64          `json:"version"`
	Teachers []TeacherRecord `json:"teachers"`
	Students []Student       `json:"students"`
}

// TeacherRecord - преподаватель вместе с его предметами в порядке добавления.
type TeacherRecord struct {
	Teacher
	Subjects []SubjectRecord `json:"subjects"`
}

// SubjectRecord - предмет и его журнал.
type SubjectRecord struct {
	Name   string `json:"name"`
	Ledger Ledger `json:"ledger"`
}

// Teacher находит преподавателя в снимке.
func (s *Snapshot) Teacher(id string) (*TeacherRecord, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Teachers {
		if s.Teachers[i].ID == id {
			return &s.Teachers[i], true
		}
	}
	return nil, false
}

// Subject находит предмет преподавателя по точному имени.
func (t *TeacherRecord) Subject(name string) (*SubjectRecord, bool) {
	for i := range t.Subjects {
		if t.Subjects[i].Name == name {
			return &t.Subjects[i], true
		}
	}
	return nil, false
}

// StudentsOf возвращает студентов преподавателя в порядке регистрации.
func (s *Snapshot) StudentsOf(teacherID string) []Student {
	if s == nil {
		return nil
	}
	var out []Student
	for _, st := range s.Students {
		if st.TeacherID == teacherID {
			out = append(out, st)
		}
	}
	return out
}

// Student находит студента по ID.
func (s *Snapshot) Student(id string) (Student, bool) {
	if s == nil {
		return Student{}, false
	}
	for _, st := range s.Students {
		if st.ID == id {
			return st, true
		}
	}
	return Student{}, false
}
