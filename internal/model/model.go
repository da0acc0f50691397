package model

// Class identifies one timetable entry. The university id scopes the teacher,
// and the teacher id scopes the timetable, mirroring the hierarchical
// collection paths in the backing store.
type Class struct {
	UniversityID string `json:"university_id"`
	TeacherID    string `json:"teacher_id"`
	TimetableID  string `json:"timetable_id"`
}

// Credential is one rotating proof that an attendance session is live.
// Credentials are append-only: written once per rotation tick, never updated
// or deleted.
type Credential struct {
	ID          string `json:"id"`
	Class       Class  `json:"class"`
	Value       string `json:"value"`
	GeneratedAt int64  `json:"generated_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

// AttendanceRecord is one accepted redemption. Immutable once written.
type AttendanceRecord struct {
	ID          string `json:"id"`
	Class       Class  `json:"class"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	StudentUID  string `json:"student_uid"`
	MarkedAt    int64  `json:"marked_at"`
	QRValue     string `json:"qr_value"`
}

// Student carries the scanning student's identity as supplied by the
// identity provider. The UID is the provider's stable opaque identifier;
// the ID is the human-facing student number.
type Student struct {
	UniversityID string
	ID           string
	UID          string
	Name         string
}
