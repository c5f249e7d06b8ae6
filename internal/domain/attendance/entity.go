// Package attendance содержит доменную модель учёта посещаемости:
// преподаватели, предметы, студенты и отметки посещаемости.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package attendance

import (
	"strings"
	"time"
	"unicode"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Status - отметка посещаемости за один день.
type Status string

const (
	StatusPresent Status = "P"
	StatusAbsent  Status = "A"
	StatusHoliday Status = "H"
	StatusNoClass Status = "N"
)

// AllStatuses перечисляет статусы в порядке отображения.
var AllStatuses = []Status{StatusPresent, StatusAbsent, StatusHoliday, StatusNoClass}

// IsValid проверяет, что статус один из P/A/H/N.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusHoliday, StatusNoClass:
		return true
	}
	return false
}

// Counts возвращает true, если статус участвует в расчёте процента (P или A).
func (s Status) Counts() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Label возвращает человекочитаемое название статуса.
func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusAbsent:
		return "Absent"
	case StatusHoliday:
		return "Holiday"
	case StatusNoClass:
		return "No Class"
	default:
		return "Unknown"
	}
}

// ParseStatus разбирает одну букву статуса без учёта регистра.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.ErrInvalidStatus
	}
	return s, nil
}

// DateLayout - формат календарной даты отметки.
const DateLayout = "2006-01-02"

// ValidateDate проверяет дату в формате YYYY-MM-DD.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return shared.WrapError("attendance", "ValidateDate", shared.ErrInvalidDate, "date must be YYYY-MM-DD", err)
	}
	return nil
}

// DefaultIDSuffix дописывается к цифрам телефона для получения ID студента.
const DefaultIDSuffix = "@c.us"

// NormalizePhone оставляет в номере только цифры.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StudentIDFromPhone детерминированно строит ID студента из номера телефона.
func StudentIDFromPhone(raw, suffix string) (id, digits string, err error) {
	digits = NormalizePhone(raw)
	if digits == "" {
		return "", "", shared.ErrNoPhoneDigits
	}
	return digits + suffix, digits, nil
}

// cleanName обрезает пробелы и отклоняет пустые имена.
func cleanName(raw string) (string, error) {
	name := strings.TrimFunc(raw, unicode.IsSpace)
	if name == "" {
		return "", shared.ErrEmptyName
	}
	return name, nil
}

// Role - роль идентификатора собеседника.
type Role int

const (
	RoleNone Role = iota
	RoleTeacher
	RoleStudent
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	default:
		return "none"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Teacher - зарегистрированный преподаватель. Владеет предметами и студентами.
type Teacher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Student принадлежит ровно одному преподавателю.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	TeacherID    string    `json:"teacherId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Ledger: studentID -> date -> status.
type Ledger map[string]map[string]Status

// clone делает глубокую копию журнала.
func (l Ledger) clone() Ledger {
	out := make(Ledger, len(l))
	for studentID, days := range l {
		copied := make(map[string]Status, len(days))
		for date, st := range days {
			copied[date] = st
		}
		out[studentID] = copied
	}
	return out
}

// Record - одна отметка посещаемости.
type Record struct {
	TeacherID string
	Subject   string
	StudentID string
	Date      string
	Status    Status
}
