package participant

import (
	"context"
	"net/http"
)

type ctxKey string

const ctxKeyToken ctxKey = "participant"

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyToken, token)
}

func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyToken).(string); ok {
		return v
	}
	return ""
}

// Middleware resolves (or mints) the participant identity for every request
// and places the token in the request context.
func Middleware(i *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := i.Ensure(w, r)
			if err != nil {
				http.Error(w, "identity error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}
