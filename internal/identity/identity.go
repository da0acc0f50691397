package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rkervin/rollcall/internal/model"
)

// Roles issued by the identity provider.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Identity is what the external identity provider asserts about a caller.
// The UID is the provider's stable opaque identifier; this service never
// interprets it.
type Identity struct {
	UID          string
	ID           string
	Name         string
	Role         string
	UniversityID string
}

// Student converts a student identity into the model's student value.
func (id Identity) Student() model.Student {
	return model.Student{
		UniversityID: id.UniversityID,
		ID:           id.ID,
		UID:          id.UID,
		Name:         id.Name,
	}
}

// Claims is the token shape the provider issues. The subject claim carries
// the UID.
type Claims struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	UniversityID string `json:"universityId"`
	jwt.RegisteredClaims
}

// Parse verifies an identity token and extracts the caller's identity.
// Only HS256 is accepted; the provider and this service share the secret.
func Parse(tokenString string, secret []byte) (Identity, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("parse identity token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return Identity{}, errors.New("invalid identity token")
	}
	if claims.Subject == "" || claims.UniversityID == "" {
		return Identity{}, errors.New("identity token missing subject or university")
	}

	return Identity{
		UID:          claims.Subject,
		ID:           claims.ID,
		Name:         claims.Name,
		Role:         claims.Role,
		UniversityID: claims.UniversityID,
	}, nil
}

type contextKey struct{}

// WithIdentity attaches the caller's identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// IsTeacher reports whether the context carries a teacher identity.
func IsTeacher(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	return ok && id.Role == RoleTeacher
}

// IsStudent reports whether the context carries a student identity.
func IsStudent(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	return ok && id.Role == RoleStudent
}
