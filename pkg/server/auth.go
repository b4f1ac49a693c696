package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/eiademand/pkg/log"
)

// authMiddleware only lets requests through that carry a bearer id token for
// the update email, unless auth is bypassed in dev mode.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		if s.oidcVerifier == nil || s.updateSpecificEmail == "" {
			log.Ctx(ctx).WarnContext(ctx, "authentication is not configured")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "missing auth header")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).ErrorContext(ctx, "invalid auth header", slog.String("header", authHeader))
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		email, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "update token validation failed", slog.Any("error", err))
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(email), []byte(s.updateSpecificEmail)) != 1 {
			log.Ctx(ctx).WarnContext(ctx, "update email mismatch", slog.String("got", email), slog.String("want", s.updateSpecificEmail))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("authEmail", email))
		log.Ctx(ctx).DebugContext(ctx, "authenticated request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateToken verifies the token and returns its email claim.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.oidcVerifier(ctx, token)
	if err != nil {
		return "", err
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", errors.New("token has no email claim")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return "", errors.New("token email is not verified")
	}
	return claims.Email, nil
}
