package store

import (
	"database/sql"
	"fmt"

	"github.com/rkervin/rollcall/internal/model"
)

// CredentialStore is the durable, append-only log of issued QR credentials.
// Students verify scanned payloads against it; nothing ever updates or
// deletes a row. Stale credentials become unusable through their expiry,
// not through removal.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Append records one issued credential.
func (s *CredentialStore) Append(c model.Credential) error {
	_, err := s.db.Exec(
		`INSERT INTO qr_credentials (id, university_id, teacher_id, timetable_id, value, generated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Class.UniversityID, c.Class.TeacherID, c.Class.TimetableID, c.Value, c.GeneratedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// Exists reports whether the exact payload value was issued for the given
// class. A single match is enough; the scanned bytes must equal the stored
// bytes.
func (s *CredentialStore) Exists(class model.Class, value string) (bool, error) {
	row := s.db.QueryRow(
		`SELECT 1 FROM qr_credentials
		 WHERE university_id = ? AND teacher_id = ? AND timetable_id = ? AND value = ?
		 LIMIT 1`,
		class.UniversityID, class.TeacherID, class.TimetableID, value,
	)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup credential: %w", err)
	}
	return true, nil
}

// CountByClass returns the number of credentials issued for a class. Used by
// session status reporting.
func (s *CredentialStore) CountByClass(class model.Class) (int64, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*) FROM qr_credentials
		 WHERE university_id = ? AND teacher_id = ? AND timetable_id = ?`,
		class.UniversityID, class.TeacherID, class.TimetableID,
	)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}
