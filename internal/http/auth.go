package http

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/datastreams/internal/observability/logger"
)

// AdminScope es el scope requerido para cambiar la membership de Raft.
const AdminScope = "cluster:admin"

// AdminClaims son los claims del token de administración del cluster.
type AdminClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// HasScope reporta si el claim scope (separado por espacios) incluye s.
func (c *AdminClaims) HasScope(s string) bool {
	for _, f := range strings.Fields(c.Scope) {
		if f == s {
			return true
		}
	}
	return false
}

// AdminVerifier valida bearer tokens EdDSA firmados por el operador del cluster.
type AdminVerifier struct {
	key    ed25519.PublicKey
	parser *jwt.Parser
}

// NewAdminVerifier arma el verificador. Con issuer vacío no se chequea iss.
func NewAdminVerifier(key ed25519.PublicKey, issuer string) *AdminVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &AdminVerifier{key: key, parser: jwt.NewParser(opts...)}
}

// ParseAdminPublicKey lee una clave pública Ed25519 en PEM (PKIX).
func ParseAdminPublicKey(pemBytes []byte) (ed25519.PublicKey, error) {
	k, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("admin public key: %w", err)
	}
	pub, ok := k.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("admin public key: not an ed25519 key")
	}
	return pub, nil
}

// Verify valida firma, exp/nbf e iss y devuelve los claims.
func (v *AdminVerifier) Verify(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return v.key, nil }); err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) > 7 && strings.EqualFold(ah[:7], "Bearer ") {
		return strings.TrimSpace(ah[7:])
	}
	return ""
}

// RequireAdmin exige Authorization: Bearer <JWT> con AdminScope. Sin verificador
// configurado rechaza todo: las rutas protegidas nunca quedan abiertas.
func RequireAdmin(v *AdminVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "admin authentication is not configured (server.admin_jwt_public_key_file)")
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cluster", error="invalid_token", error_description="missing bearer token"`)
				WriteError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				logger.From(r.Context()).Debug("admin token rejected", logger.Err(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="cluster", error="invalid_token"`)
				WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid bearer token")
				return
			}
			if !claims.HasScope(AdminScope) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cluster", error="insufficient_scope", scope="`+AdminScope+`"`)
				WriteError(w, http.StatusForbidden, "insufficient_scope", "token lacks scope "+AdminScope)
				return
			}
			ctx := logger.WithFields(r.Context(), zap.String("admin", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
