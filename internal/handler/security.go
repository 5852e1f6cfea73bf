package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/canteenhq/mealpass/internal/domain/auth"
)

// APIKeyHeader is the request header carrying the caller's API key.
const APIKeyHeader = "api_key"

// Security authenticates API requests via HMAC-SHA256 hashed API keys. Keys
// are never stored in the clear: the database holds hex(HMAC(pepper, key)) and
// lookups go through the hash.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security guard with the given API key repository and
// HMAC pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate wraps next, rejecting any request whose API key does not hash
// to a stored key. The final hash comparison is constant-time to prevent
// timing side-channels.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
