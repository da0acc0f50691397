package redeem

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rkervin/rollcall/internal/model"
	"github.com/rkervin/rollcall/internal/token"
)

// Redemption failure taxonomy. The first two are permanent for the scanned
// payload; an unrecognized credential can be transient while the teacher's
// write is still propagating, so the student may simply scan again.
var (
	ErrMalformedCredential    = errors.New("malformed credential")
	ErrCredentialExpired      = errors.New("credential expired")
	ErrCredentialUnrecognized = errors.New("credential not recognized")
	ErrPersistenceFailed      = errors.New("attendance persistence failed")
)

// CredentialReader is the slice of the credential store the validator needs.
type CredentialReader interface {
	Exists(class model.Class, value string) (bool, error)
}

// AttendanceWriter is the slice of the attendance ledger the validator needs.
type AttendanceWriter interface {
	Append(model.AttendanceRecord) error
}

// Validator turns a scanned payload into at most one attendance record.
//
// Checks run in a fixed order: decode, expiry, authenticity, commit. Nothing
// is written on any failure before the commit step, and the commit writes
// exactly one record. Redemption is not idempotent: rescanning a live,
// recognized payload produces a second record.
type Validator struct {
	creds  CredentialReader
	ledger AttendanceWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewValidator(creds CredentialReader, ledger AttendanceWriter, logger *slog.Logger) *Validator {
	return &Validator{
		creds:  creds,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// Redeem processes one scan attempt for the given student. On success it
// returns the written record; on failure it returns one of the package's
// sentinel errors. A failed attempt is processed, not queued — the student
// retries by scanning again.
func (v *Validator) Redeem(raw string, student model.Student) (*model.AttendanceRecord, error) {
	p, err := token.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	now := v.now()
	if p.Expired(now) {
		return nil, ErrCredentialExpired
	}

	class := p.Class()
	ok, err := v.creds.Exists(class, raw)
	if err != nil {
		v.logger.Error("credential lookup",
			"timetable_id", class.TimetableID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if !ok {
		return nil, ErrCredentialUnrecognized
	}

	rec := model.AttendanceRecord{
		ID:          uuid.NewString(),
		Class:       class,
		StudentID:   student.ID,
		StudentName: student.Name,
		StudentUID:  student.UID,
		MarkedAt:    now.UnixMilli(),
		QRValue:     raw,
	}
	if err := v.ledger.Append(rec); err != nil {
		v.logger.Error("append attendance record",
			"timetable_id", class.TimetableID,
			"student_uid", student.UID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	return &rec, nil
}
