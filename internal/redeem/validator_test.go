package redeem

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rkervin/rollcall/internal/database"
	"github.com/rkervin/rollcall/internal/model"
	"github.com/rkervin/rollcall/internal/store"
	"github.com/rkervin/rollcall/internal/token"
)

func setupValidator(t *testing.T) (*Validator, *store.CredentialStore, *store.AttendanceStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cs := store.NewCredentialStore(db)
	as := store.NewAttendanceStore(db)
	return NewValidator(cs, as, slog.Default()), cs, as
}

func atMillis(v *Validator, ms int64) {
	v.now = func() time.Time { return time.UnixMilli(ms) }
}

func issuedPayload(cs *store.CredentialStore, t *testing.T, generatedAt, expiresAt int64) string {
	t.Helper()
	p := token.Payload{
		UniversityID: "uni-1",
		TeacherID:    "t-1",
		TimetableID:  "tt-1",
		ExpiresAt:    expiresAt,
	}
	value := token.Encode(p)
	err := cs.Append(model.Credential{
		ID:          uuid.NewString(),
		Class:       p.Class(),
		Value:       value,
		GeneratedAt: generatedAt,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		t.Fatalf("append credential: %v", err)
	}
	return value
}

func testStudent() model.Student {
	return model.Student{UniversityID: "uni-1", ID: "S-12345", UID: "uid-1", Name: "Asha Rao"}
}

func TestRedeemSuccess(t *testing.T) {
	v, cs, as := setupValidator(t)
	value := issuedPayload(cs, t, 1000, 3000)
	atMillis(v, 1500)

	rec, err := v.Redeem(value, testStudent())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if rec.MarkedAt != 1500 {
		t.Errorf("marked_at = %d, want 1500", rec.MarkedAt)
	}
	if rec.QRValue != value {
		t.Errorf("qr_value = %q, want the scanned payload", rec.QRValue)
	}
	if rec.StudentUID != "uid-1" || rec.StudentID != "S-12345" {
		t.Errorf("unexpected student fields: %+v", rec)
	}

	records, err := as.ListByStudent("uni-1", "uid-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected exactly one record, got %d", len(records))
	}
}

func TestRedeemMalformed(t *testing.T) {
	v, _, as := setupValidator(t)
	atMillis(v, 1000)

	for _, raw := range []string{"", "garbage", `{"universityId":"u"}`} {
		_, err := v.Redeem(raw, testStudent())
		if !errors.Is(err, ErrMalformedCredential) {
			t.Errorf("Redeem(%q) error = %v, want ErrMalformedCredential", raw, err)
		}
	}

	records, err := as.ListByStudent("uni-1", "uid-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("malformed scans must write nothing, got %d records", len(records))
	}
}

func TestRedeemExpired(t *testing.T) {
	v, cs, as := setupValidator(t)
	value := issuedPayload(cs, t, 1000, 3000)
	atMillis(v, 3001)

	_, err := v.Redeem(value, testStudent())
	if !errors.Is(err, ErrCredentialExpired) {
		t.Errorf("error = %v, want ErrCredentialExpired", err)
	}

	records, _ := as.ListByStudent("uni-1", "uid-1")
	if len(records) != 0 {
		t.Errorf("expired scans must write nothing, got %d records", len(records))
	}
}

func TestRedeemUnrecognized(t *testing.T) {
	v, _, as := setupValidator(t)
	atMillis(v, 1000)

	// Well-formed and unexpired, but never issued.
	forged := token.Encode(token.Payload{
		UniversityID: "uni-1",
		TeacherID:    "t-1",
		TimetableID:  "tt-1",
		ExpiresAt:    5000,
	})
	_, err := v.Redeem(forged, testStudent())
	if !errors.Is(err, ErrCredentialUnrecognized) {
		t.Errorf("error = %v, want ErrCredentialUnrecognized", err)
	}

	records, _ := as.ListByStudent("uni-1", "uid-1")
	if len(records) != 0 {
		t.Errorf("unrecognized scans must write nothing, got %d records", len(records))
	}
}

func TestRedeemRepeatProducesSecondRecord(t *testing.T) {
	v, cs, as := setupValidator(t)
	value := issuedPayload(cs, t, 1000, 3000)
	atMillis(v, 1500)

	if _, err := v.Redeem(value, testStudent()); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := v.Redeem(value, testStudent()); err != nil {
		t.Fatalf("second redeem: %v", err)
	}

	records, err := as.ListByStudent("uni-1", "uid-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("repeat redemption should append a second record, got %d", len(records))
	}
}

func TestRedeemPersistenceFailed(t *testing.T) {
	v, cs, _ := setupValidator(t)
	value := issuedPayload(cs, t, 1000, 3000)
	atMillis(v, 1500)

	v.ledger = failingLedger{}
	_, err := v.Redeem(value, testStudent())
	if !errors.Is(err, ErrPersistenceFailed) {
		t.Errorf("error = %v, want ErrPersistenceFailed", err)
	}
}

type failingLedger struct{}

func (failingLedger) Append(model.AttendanceRecord) error {
	return errors.New("disk full")
}

// A credential stays redeemable until its own expiry and no longer: minted
// at t=1000 with a two-second validity it redeems at t=1500 and is rejected
// at t=4000, even though it is still present in the store.
func TestRedeemValidityTail(t *testing.T) {
	v, cs, as := setupValidator(t)
	value := issuedPayload(cs, t, 1000, 3000)

	atMillis(v, 1500)
	if _, err := v.Redeem(value, testStudent()); err != nil {
		t.Fatalf("redeem at t=1500: %v", err)
	}

	atMillis(v, 4000)
	_, err := v.Redeem(value, testStudent())
	if !errors.Is(err, ErrCredentialExpired) {
		t.Errorf("redeem at t=4000 error = %v, want ErrCredentialExpired", err)
	}

	records, _ := as.ListByStudent("uni-1", "uid-1")
	if len(records) != 1 {
		t.Errorf("expected exactly one record from the timeline, got %d", len(records))
	}
}
