package rbac

import (
	"context"
	"log/slog"
	"net/http"
)

type subjectContextKey struct{}

// ContextWithSubject stores the subject in context.
func ContextWithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext extracts the subject from context.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(Subject)
	return subject, ok
}

// SubjectResolver identifies the subject behind a request. It reports false
// when the request is anonymous.
type SubjectResolver interface {
	Resolve(ctx context.Context, r *http.Request) (Subject, bool, error)
}

// Authenticate resolves the subject for every request and stores it in
// context. Resolution failures leave the request anonymous.
func Authenticate(resolver SubjectResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			subject, ok, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				if logger != nil {
					logger.Warn("resolve subject", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
		})
	}
}
