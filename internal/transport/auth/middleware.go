package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"consult-settlement/internal/domain"
)

type ctxKey string

const UserIDKey ctxKey = "userID"

type TokenFinder interface {
	FindByPlainToken(ctx context.Context, plainToken string) (*domain.ServiceToken, error)
}

// TokenMiddleware authenticates requests by service token, read from the
// Authorization header or, for websocket upgrades that cannot set headers,
// from the token query parameter.
func TokenMiddleware(tokens TokenFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st *domain.ServiceToken

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				plain := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
				if plain != "" {
					if t, err := tokens.FindByPlainToken(r.Context(), plain); err == nil {
						st = t
					}
				}
			}

			if st == nil {
				if plain := r.URL.Query().Get("token"); plain != "" {
					if t, err := tokens.FindByPlainToken(r.Context(), plain); err == nil {
						st = t
					}
				}
			}

			if st == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, st.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}
