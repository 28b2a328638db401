// Package auth issues and verifies the optional bearer tokens that bind a
// client to a server through a shared secret.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/pkg/protocol"
)

const (
	issuer     = "dirsync-client"
	defaultTTL = 5 * time.Minute
)

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Host string `json:"host,omitempty"`
}

// Signer mints short-lived HS256 tokens for upload requests.
type Signer struct {
	secret []byte
	host   string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer for secret. host identifies the client in the token.
func NewSigner(secret, host string) *Signer {
	return &Signer{secret: []byte(secret), host: host, ttl: defaultTTL, now: time.Now}
}

// Token returns a fresh signed token.
func (s *Signer) Token() (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.host,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Host: s.host,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks tokens issued by a Signer with the same secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Validate parses raw and checks signature, issuer and expiry.
func (v *Verifier) Validate(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// Middleware rejects requests without a valid bearer token.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			sendAuthError(w, "missing authentication token")
			return
		}
		claims, err := v.Validate(raw)
		if err != nil {
			logging.WithContext(r.Context()).Warn("rejected upload token",
				zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			sendAuthError(w, "invalid token: "+err.Error())
			return
		}
		logging.WithContext(r.Context()).Debug("authenticated client", zap.String("host", claims.Host))
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return raw, ok && raw != ""
}

func sendAuthError(w http.ResponseWriter, message string) {
	body := protocol.ErrorResponse{Error: message, Code: http.StatusUnauthorized}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Code)
	json.NewEncoder(w).Encode(body)
}
