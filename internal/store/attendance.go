package store

import (
	"database/sql"
	"fmt"

	"github.com/rkervin/rollcall/internal/model"
)

// AttendanceStore is the durable ledger of accepted redemptions. Records are
// immutable; the store deliberately enforces no uniqueness across
// (student, session) pairs — deduplication, if any, is the caller's call.
type AttendanceStore struct {
	db *sql.DB
}

func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db}
}

const attendanceCols = `id, university_id, teacher_id, timetable_id, student_id, student_name, student_uid, marked_at, qr_value`

func scanAttendance(scanner interface{ Scan(...any) error }) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := scanner.Scan(
		&rec.ID,
		&rec.Class.UniversityID,
		&rec.Class.TeacherID,
		&rec.Class.TimetableID,
		&rec.StudentID,
		&rec.StudentName,
		&rec.StudentUID,
		&rec.MarkedAt,
		&rec.QRValue,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Append writes one attendance record.
func (s *AttendanceStore) Append(rec model.AttendanceRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO attendance_records (`+attendanceCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Class.UniversityID, rec.Class.TeacherID, rec.Class.TimetableID,
		rec.StudentID, rec.StudentName, rec.StudentUID, rec.MarkedAt, rec.QRValue,
	)
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// ListByStudent returns a student's records across all classes in the
// university, most recent first.
func (s *AttendanceStore) ListByStudent(universityID, studentUID string) ([]model.AttendanceRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+attendanceCols+` FROM attendance_records
		 WHERE university_id = ? AND student_uid = ?
		 ORDER BY marked_at DESC`,
		universityID, studentUID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendance by student: %w", err)
	}
	defer rows.Close()
	return collectAttendance(rows)
}

// ListByClass returns every record for one class, most recent first. Backs
// the teacher's attendance sheet view.
func (s *AttendanceStore) ListByClass(class model.Class) ([]model.AttendanceRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+attendanceCols+` FROM attendance_records
		 WHERE university_id = ? AND teacher_id = ? AND timetable_id = ?
		 ORDER BY marked_at DESC`,
		class.UniversityID, class.TeacherID, class.TimetableID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendance by class: %w", err)
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func collectAttendance(rows *sql.Rows) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
