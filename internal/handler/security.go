package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/fault"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves the api_key header to a key record and stores it in
// the request context. Requests without a valid key get 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(APIKeyHeader)
		if raw == "" {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing api key")
			return
		}
		info, err := s.lookup(r, raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if info == nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
	})
}

// RequireScope wraps next with Authenticate and rejects keys lacking scope
// with 403.
func (s *SecurityHandler) RequireScope(scope string, next http.Handler) http.Handler {
	return s.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if k, _ := auth.FromContext(r.Context()); k == nil || !k.HasScope(scope) {
			writeProblem(w, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// lookup returns nil without error when the key is unknown.
func (s *SecurityHandler) lookup(r *http.Request, raw string) (*auth.APIKeyInfo, error) {
	hexHash := auth.HashKey(s.pepper, raw)
	info, err := s.apikeys.FindByHash(r.Context(), hexHash)
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored hash could differ from the computed one if the repository
	// returned a stale or wrong row.
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, nil
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, nil
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, nil
	}
	return info, nil
}
