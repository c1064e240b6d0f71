package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/logger"
)

// ReauthenticateMessage is the error body sent with every 401.
const ReauthenticateMessage = "reauthenticate"

// Credentials resolves the Authorization bearer token through provider and
// stores the result on the request context. Requests without a usable token
// are rejected with 401.
func Credentials(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, ReauthenticateMessage)
				return
			}

			creds, err := provider.Credentials(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrReauthenticate) {
					WriteError(w, http.StatusUnauthorized, ReauthenticateMessage)
					return
				}
				log := logger.FromContext(r.Context())
				log.Error().Err(err).Msg("Resolving credentials failed")
				WriteError(w, http.StatusBadGateway, "identity provider unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithCredentials(r.Context(), creds)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
