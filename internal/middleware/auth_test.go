package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rkervin/rollcall/internal/identity"
)

var testSecret = []byte("test-secret")

func signIdentity(t *testing.T, role string) string {
	t.Helper()
	claims := identity.Claims{
		ID:           "S-1",
		Name:         "Asha Rao",
		Role:         role,
		UniversityID: "uni-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func identityEcho(t *testing.T, wantUID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.FromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		if id.UID != wantUID {
			t.Errorf("uid = %s, want %s", id.UID, wantUID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireIdentityValid(t *testing.T) {
	h := RequireIdentity(testSecret)(identityEcho(t, "uid-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/attendance", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentity(t, identity.RoleStudent))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireIdentityMissingToken(t *testing.T) {
	h := RequireIdentity(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/attendance", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireIdentityBadToken(t *testing.T) {
	h := RequireIdentity(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/attendance", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireTeacher(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireIdentity(testSecret)(RequireTeacher(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/classes/tt-1/session", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentity(t, identity.RoleTeacher))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("teacher status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/classes/tt-1/session", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentity(t, identity.RoleStudent))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student status = %d, want 403", rec.Code)
	}
}

func TestRequireStudent(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireIdentity(testSecret)(RequireStudent(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentity(t, identity.RoleStudent))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("student status = %d, want 200", rec.Code)
	}

	// A teacher must not be able to mark themselves present.
	req = httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentity(t, identity.RoleTeacher))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("teacher status = %d, want 403", rec.Code)
	}
}
