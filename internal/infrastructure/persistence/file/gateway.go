// Package file persists attendance snapshots as a single JSON document.
//
// The document keeps the classic layout
//
//	{"attendance": {teacher: {subject: {student: {date: status}}}},
//	 "teachers":   {id: {name, registeredAt}},
//	 "students":   {id: {name, phone, teacherId, registeredAt}}}
//
// plus an "order" section that preserves registration and insertion order,
// which JSON objects cannot carry. Documents without it still load; entities
// are then ordered by registration time.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "attendance.json"

type document struct {
	Attendance map[string]map[string]attendance.Ledger `json:"attendance"`
	Teachers   map[string]teacherDoc                    `json:"teachers"`
	Students   map[string]studentDoc                    `json:"students"`
	Order      *orderDoc                                `json:"order,omitempty"`
}

// loadedDocument defers subject bodies. Older files also hold subject-level
// entries ({subject: {date: status}}) next to per-student ledgers.
type loadedDocument struct {
	document
	Attendance map[string]map[string]json.RawMessage `json:"attendance"`
}

type teacherDoc struct {
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type studentDoc struct {
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	TeacherID    string    `json:"teacherId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type orderDoc struct {
	Version  uint64              `json:"version"`
	Teachers []string            `json:"teachers"`
	Students []string            `json:"students"`
	Subjects map[string][]string `json:"subjects"`
}

// Gateway implements attendance.Gateway on a local file.
type Gateway struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewGateway creates a file gateway. The directory is created on first save.
func NewGateway(path string, logger *zap.Logger) *Gateway {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{path: path, logger: logger.Named("file_gateway")}
}

// Path returns the document location.
func (g *Gateway) Path() string {
	return g.path
}

// Load reads the document. A missing file yields (nil, nil).
func (g *Gateway) Load(_ context.Context) (*attendance.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := os.ReadFile(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", g.path, err)
	}

	var loaded loadedDocument
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", g.path, err)
	}

	doc := loaded.document
	var skipped int
	doc.Attendance, skipped = g.decodeLedgers(loaded.Attendance)

	snap := fromDocument(doc)
	g.logger.Info("snapshot loaded",
		zap.String("path", g.path),
		zap.Int("teachers", len(snap.Teachers)),
		zap.Int("students", len(snap.Students)),
		zap.Int("skipped_entries", skipped),
	)
	return snap, nil
}

// Save writes the document atomically: a temp file in the same directory is
// renamed over the target.
func (g *Gateway) Save(_ context.Context, snap *attendance.Snapshot) error {
	data, err := json.MarshalIndent(toDocument(snap), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(g.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, g.path); err != nil {
		return fmt.Errorf("replace %s: %w", g.path, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func toDocument(snap *attendance.Snapshot) document {
	doc := document{
		Attendance: make(map[string]map[string]attendance.Ledger, len(snap.Teachers)),
		Teachers:   make(map[string]teacherDoc, len(snap.Teachers)),
		Students:   make(map[string]studentDoc, len(snap.Students)),
		Order: &orderDoc{
			Version:  snap.Version,
			Teachers: make([]string, 0, len(snap.Teachers)),
			Students: make([]string, 0, len(snap.Students)),
			Subjects: make(map[string][]string, len(snap.Teachers)),
		},
	}

	for _, tr := range snap.Teachers {
		doc.Teachers[tr.ID] = teacherDoc{Name: tr.Name, RegisteredAt: tr.RegisteredAt}
		doc.Order.Teachers = append(doc.Order.Teachers, tr.ID)

		subjects := make(map[string]attendance.Ledger, len(tr.Subjects))
		names := make([]string, 0, len(tr.Subjects))
		for _, sub := range tr.Subjects {
			ledger := sub.Ledger
			if ledger == nil {
				ledger = attendance.Ledger{}
			}
			subjects[sub.Name] = ledger
			names = append(names, sub.Name)
		}
		doc.Attendance[tr.ID] = subjects
		doc.Order.Subjects[tr.ID] = names
	}

	for _, st := range snap.Students {
		doc.Students[st.ID] = studentDoc{
			Name:         st.Name,
			Phone:        st.Phone,
			TeacherID:    st.TeacherID,
			RegisteredAt: st.RegisteredAt,
		}
		doc.Order.Students = append(doc.Order.Students, st.ID)
	}

	return doc
}

func fromDocument(doc document) *attendance.Snapshot {
	order := doc.Order
	if order == nil {
		order = &orderDoc{}
	}

	snap := &attendance.Snapshot{Version: order.Version}

	teacherIDs := ordered(order.Teachers, keys(doc.Teachers), func(id string) time.Time {
		return doc.Teachers[id].RegisteredAt
	})
	for _, id := range teacherIDs {
		t := doc.Teachers[id]
		rec := attendance.TeacherRecord{
			Teacher: attendance.Teacher{ID: id, Name: t.Name, RegisteredAt: t.RegisteredAt},
		}
		subjects := doc.Attendance[id]
		for _, name := range ordered(order.Subjects[id], keys(subjects), nil) {
			rec.Subjects = append(rec.Subjects, attendance.SubjectRecord{Name: name, Ledger: subjects[name]})
		}
		snap.Teachers = append(snap.Teachers, rec)
	}

	studentIDs := ordered(order.Students, keys(doc.Students), func(id string) time.Time {
		return doc.Students[id].RegisteredAt
	})
	for _, id := range studentIDs {
		st := doc.Students[id]
		snap.Students = append(snap.Students, attendance.Student{
			ID:           id,
			Name:         st.Name,
			Phone:        st.Phone,
			TeacherID:    st.TeacherID,
			RegisteredAt: st.RegisteredAt,
		})
	}

	return snap
}

// decodeLedgers keeps per-student ledgers and drops entries that are not
// objects, such as subject-level {date: status} marks.
func (g *Gateway) decodeLedgers(raw map[string]map[string]json.RawMessage) (map[string]map[string]attendance.Ledger, int) {
	out := make(map[string]map[string]attendance.Ledger, len(raw))
	skipped := 0

	for teacherID, subjects := range raw {
		decoded := make(map[string]attendance.Ledger, len(subjects))
		for subject, body := range subjects {
			var entries map[string]json.RawMessage
			if err := json.Unmarshal(body, &entries); err != nil {
				g.logger.Warn("skipping malformed subject",
					zap.String("teacher_id", teacherID),
					zap.String("subject", subject),
					zap.Error(err),
				)
				skipped++
				continue
			}

			ledger := make(attendance.Ledger, len(entries))
			for key, entry := range entries {
				var days map[string]attendance.Status
				if err := json.Unmarshal(entry, &days); err != nil {
					g.logger.Warn("skipping subject-level entry",
						zap.String("teacher_id", teacherID),
						zap.String("subject", subject),
						zap.String("key", key),
					)
					skipped++
					continue
				}
				if days == nil {
					days = map[string]attendance.Status{}
				}
				ledger[key] = days
			}
			decoded[subject] = ledger
		}
		out[teacherID] = decoded
	}
	return out, skipped
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ordered lists the present ids: recorded ones first in their order, then the
// rest by registration time and id.
func ordered(recorded, present []string, registered func(string) time.Time) []string {
	remaining := make(map[string]bool, len(present))
	for _, id := range present {
		remaining[id] = true
	}

	out := make([]string, 0, len(present))
	for _, id := range recorded {
		if remaining[id] {
			out = append(out, id)
			delete(remaining, id)
		}
	}

	rest := keys(remaining)
	sort.Slice(rest, func(i, j int) bool {
		if registered != nil {
			ti, tj := registered(rest[i]), registered(rest[j])
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
		}
		return rest[i] < rest[j]
	})
	return append(out, rest...)
}
