package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Review roles encoded in token claims.
const (
	RoleDoctor     = "doctor"
	RoleAccountant = "accountant"
)

type contextKey string

const roleContextKey contextKey = "role"

type tokenRequest struct {
	Role     string `json:"role"`
	Password string `json:"password"`
}

type roleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// handleToken issues a signed review token when the role password matches.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request body"))
		return
	}

	var expected string
	switch req.Role {
	case RoleDoctor:
		expected = s.opts.DoctorPassword
	case RoleAccountant:
		expected = s.opts.AccountantPassword
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("unknown role"))
		return
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(expected)) != 1 {
		slog.Warn("Server.handleToken: authentication failed", "role", req.Role)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("invalid credentials"))
		return
	}

	now := time.Now()
	claims := roleClaims{
		Role: req.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Role,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		slog.Error("Server.handleToken: signing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to issue token"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"token": token}))
}

// requireRole validates the bearer token and stores the review role in the
// request context.
func (s *Server) requireRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("missing bearer token"))
			return
		}
		var claims roleClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.opts.JWTSecret), nil
		})
		if err != nil {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("invalid token"))
			return
		}
		if claims.Role != RoleDoctor && claims.Role != RoleAccountant {
			writeJSONResponse(w, http.StatusForbidden, models.Error("role not permitted"))
			return
		}
		ctx := context.WithValue(r.Context(), roleContextKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// roleFromContext returns the review role stored by requireRole.
func roleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}
