package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements attendance.Gateway on PostgreSQL.
// Save replaces every table inside one transaction; a snapshot older than the
// stored version is ignored.
type SnapshotRepository struct {
	conn   *Connection
	logger *zap.Logger
}

// NewSnapshotRepository creates a new repository.
func NewSnapshotRepository(conn *Connection, logger *zap.Logger) *SnapshotRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotRepository{conn: conn, logger: logger.Named("postgres")}
}

// Load reads the stored registry. It returns (nil, nil) when nothing was saved yet.
func (r *SnapshotRepository) Load(ctx context.Context) (*attendance.Snapshot, error) {
	var version int64
	err := r.conn.QueryRow(ctx, `SELECT version FROM snapshot_meta WHERE id = 1`).Scan(&version)
	if err != nil {
		if IsNoRows(err) || IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot version: %w", err)
	}

	snap := &attendance.Snapshot{Version: uint64(version)}
	index := make(map[string]int)

	rows, err := r.conn.Query(ctx, `SELECT id, name, registered_at FROM teachers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load teachers: %w", err)
	}
	for rows.Next() {
		var t attendance.Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.RegisteredAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan teacher: %w", err)
		}
		t.RegisteredAt = t.RegisteredAt.UTC()
		index[t.ID] = len(snap.Teachers)
		snap.Teachers = append(snap.Teachers, attendance.TeacherRecord{Teacher: t})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load teachers: %w", err)
	}

	rows, err = r.conn.Query(ctx, `SELECT teacher_id, name FROM subjects ORDER BY teacher_id, position`)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	for rows.Next() {
		var teacherID, name string
		if err := rows.Scan(&teacherID, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		if i, ok := index[teacherID]; ok {
			snap.Teachers[i].Subjects = append(snap.Teachers[i].Subjects, attendance.SubjectRecord{
				Name:   name,
				Ledger: make(attendance.Ledger),
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	rows, err = r.conn.Query(ctx, `SELECT id, teacher_id, name, phone, registered_at FROM students ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	for rows.Next() {
		var st attendance.Student
		if err := rows.Scan(&st.ID, &st.TeacherID, &st.Name, &st.Phone, &st.RegisteredAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan student: %w", err)
		}
		st.RegisteredAt = st.RegisteredAt.UTC()
		snap.Students = append(snap.Students, st)

		// Every subject carries a row for each student of its teacher.
		if i, ok := index[st.TeacherID]; ok {
			for _, sub := range snap.Teachers[i].Subjects {
				sub.Ledger[st.ID] = make(map[string]attendance.Status)
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}

	rows, err = r.conn.Query(ctx, `SELECT teacher_id, subject, student_id, date, status FROM attendance_records`)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			teacherID, subject, studentID, status string
			date                                  time.Time
		)
		if err := rows.Scan(&teacherID, &subject, &studentID, &date, &status); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		i, ok := index[teacherID]
		if !ok {
			continue
		}
		sub, ok := snap.Teachers[i].Subject(subject)
		if !ok {
			continue
		}
		days := sub.Ledger[studentID]
		if days == nil {
			days = make(map[string]attendance.Status)
			sub.Ledger[studentID] = days
		}
		days[date.Format(attendance.DateLayout)] = attendance.Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	return snap, nil
}

// Save replaces the stored registry with snap.
func (r *SnapshotRepository) Save(ctx context.Context, snap *attendance.Snapshot) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var stored int64
		err := tx.QueryRow(ctx, `SELECT version FROM snapshot_meta WHERE id = 1 FOR UPDATE`).Scan(&stored)
		switch {
		case err == nil:
			if uint64(stored) >= snap.Version {
				r.logger.Debug("skipping stale snapshot",
					zap.Uint64("version", snap.Version),
					zap.Int64("stored", stored),
				)
				return nil
			}
		case IsNoRows(err):
		default:
			return fmt.Errorf("lock snapshot version: %w", err)
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM attendance_records`)
		batch.Queue(`DELETE FROM students`)
		batch.Queue(`DELETE FROM subjects`)
		batch.Queue(`DELETE FROM teachers`)

		for pos, tr := range snap.Teachers {
			batch.Queue(`INSERT INTO teachers (id, name, position, registered_at) VALUES ($1, $2, $3, $4)`,
				tr.ID, tr.Name, pos, tr.RegisteredAt)
			for subPos, sub := range tr.Subjects {
				batch.Queue(`INSERT INTO subjects (teacher_id, name, position) VALUES ($1, $2, $3)`,
					tr.ID, sub.Name, subPos)
			}
		}
		for pos, st := range snap.Students {
			batch.Queue(`INSERT INTO students (id, teacher_id, name, phone, position, registered_at) VALUES ($1, $2, $3, $4, $5, $6)`,
				st.ID, st.TeacherID, st.Name, st.Phone, pos, st.RegisteredAt)
		}
		records := 0
		for _, tr := range snap.Teachers {
			for _, sub := range tr.Subjects {
				for studentID, days := range sub.Ledger {
					for date, status := range days {
						day, err := time.Parse(attendance.DateLayout, date)
						if err != nil {
							return fmt.Errorf("record %s/%s/%s: %w", tr.ID, sub.Name, studentID, err)
						}
						batch.Queue(`INSERT INTO attendance_records (teacher_id, subject, student_id, date, status) VALUES ($1, $2, $3, $4, $5)`,
							tr.ID, sub.Name, studentID, day, string(status))
						records++
					}
				}
			}
		}
		batch.Queue(`INSERT INTO snapshot_meta (id, version, saved_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, saved_at = EXCLUDED.saved_at`,
			int64(snap.Version))

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}

		r.logger.Debug("snapshot saved",
			zap.Uint64("version", snap.Version),
			zap.Int("teachers", len(snap.Teachers)),
			zap.Int("students", len(snap.Students)),
			zap.Int("records", records),
		)
		return nil
	})
}
