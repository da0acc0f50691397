package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rkervin/rollcall/internal/model"
)

// ErrMalformed reports a payload that cannot be decoded into a valid
// credential. It is permanent: rescanning the same data will never succeed.
var ErrMalformed = errors.New("malformed credential payload")

// Payload is the decoded form of a rotating QR credential.
//
// The wire encoding is a JSON object with exactly these four fields, in this
// order. Field order matters: the authenticity check compares the scanned
// string byte for byte against stored values, so every encoder must produce
// identical bytes for identical payloads.
type Payload struct {
	UniversityID string `json:"universityId"`
	TeacherID    string `json:"teacherId"`
	TimetableID  string `json:"timetableId"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Encode serializes the payload to its canonical wire form.
func Encode(p Payload) string {
	// Marshal of a flat struct with string/int fields cannot fail.
	b, _ := json.Marshal(p)
	return string(b)
}

// Decode parses a scanned payload. It rejects anything that is not a JSON
// object carrying all four fields; a decoder must fail deterministically on
// garbage rather than crash.
func Decode(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.UniversityID == "" || p.TeacherID == "" || p.TimetableID == "" || p.ExpiresAt <= 0 {
		return Payload{}, fmt.Errorf("%w: missing required field", ErrMalformed)
	}
	return p, nil
}

// Expired reports whether the payload's validity window has passed.
func (p Payload) Expired(now time.Time) bool {
	return now.UnixMilli() > p.ExpiresAt
}

// Class returns the class scope the payload was issued for.
func (p Payload) Class() model.Class {
	return model.Class{
		UniversityID: p.UniversityID,
		TeacherID:    p.TeacherID,
		TimetableID:  p.TimetableID,
	}
}
