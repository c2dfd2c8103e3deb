package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/catalog-indexer/pkg/httputil"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// AdminScope must appear in the scope claim of a signed admin token.
const AdminScope = "index:admin"

// AdminAuthConfig selects how admin callers authenticate. Either mechanism
// may be configured; with neither the API is open, which is how local
// development runs.
type AdminAuthConfig struct {
	// Token is a static bearer token compared in constant time.
	Token string
	// JWTSecret verifies HMAC signed tokens carrying AdminScope.
	JWTSecret string
	// JWTIssuer, when set, must match the iss claim.
	JWTIssuer string
}

func (c AdminAuthConfig) enabled() bool { return c.Token != "" || c.JWTSecret != "" }

type adminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

var errMissingScope = errors.New("token lacks the " + AdminScope + " scope")

// AdminAuth guards the admin API.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	var parser *jwt.Parser
	if cfg.JWTSecret != "" {
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		}
		if cfg.JWTIssuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
		}
		parser = jwt.NewParser(opts...)
	}

	return func(next http.Handler) http.Handler {
		if !cfg.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, msg := bearerToken(r)
			if msg != "" {
				writeAuthError(w, r, msg)
				return
			}
			if cfg.Token != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(cfg.Token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if parser == nil {
				writeAuthError(w, r, "invalid token")
				return
			}

			claims, err := verifyAdminJWT(parser, raw, []byte(cfg.JWTSecret))
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "admin token rejected",
					"path", r.URL.Path, "error", err.Error())
				writeAuthError(w, r, "invalid or expired token")
				return
			}
			if sub := claims.Subject; sub != "" {
				ctx := logger.NewContext(r.Context(), logger.FromContext(r.Context()).With("admin_subject", sub))
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", "invalid authorization header format"
	}
	return token, ""
}

func verifyAdminJWT(parser *jwt.Parser, raw string, secret []byte) (*adminClaims, error) {
	claims := &adminClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		return nil, err
	}
	if !slices.Contains(strings.Fields(claims.Scope), AdminScope) {
		return nil, errMissingScope
	}
	return claims, nil
}

func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="catalog-indexer"`)
	httputil.WriteFailure(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
}
