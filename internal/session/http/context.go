// Package http provides HTTP middleware for session-based authentication.
package http

import (
	"context"
)

// subjectKey is a context key type for storing the authenticated subject.
type subjectKey struct{}

// WithSubject stores the authenticated subject in the context.
// Called by the authentication middleware after successful token validation.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// GetSubject retrieves the authenticated subject from the context.
// Returns (subject, true) if present, or ("", false) if no subject was set.
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok
}
