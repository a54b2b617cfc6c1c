package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"moltbridge/server/internal/auth"
	"moltbridge/server/internal/observability"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// AuthContextKey is the context key for auth context
	AuthContextKey ContextKey = "authContext"
	// RequestIDKey is the context key for request tracing ID
	RequestIDKey ContextKey = "requestID"
)

// AuthContext identifies the caller of the inbound surface. It never holds
// the outbound Moltbook credential.
type AuthContext struct {
	ClientID string
	AuthType string // "api_key" or "none"
}

// AuthError is an authorization failure with an HTTP status.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return e.Message
}

// GetAuthContext extracts the auth context from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(AuthContextKey).(*AuthContext)
	return authCtx
}

// GetRequestID extracts the request tracing ID from a request context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Authorizer handles authorization checks
type Authorizer struct{}

// NewAuthorizer creates a new authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Authorize is HTTP middleware that checks the bearer API key (when auth is
// configured) and attaches auth context plus a request ID.
func (a *Authorizer) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := a.ValidateRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		// Generate or propagate request ID for tracing
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateRequest validates the request and returns auth context.
func (a *Authorizer) ValidateRequest(r *http.Request) (*AuthContext, error) {
	if !auth.Enabled() {
		return &AuthContext{ClientID: "anonymous", AuthType: "none"}, nil
	}

	header := r.Header.Get("Authorization")
	key, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || key == "" {
		observability.LogSecurityEvent("", "", "missing_api_key", map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		return nil, &AuthError{
			Code:    "MISSING_API_KEY",
			Message: "Missing bearer API key",
			Status:  http.StatusUnauthorized,
		}
	}

	claims, err := auth.VerifyAPIKey(key)
	if err != nil {
		observability.LogSecurityEvent("", "", "invalid_api_key", map[string]any{
			"remote_addr": r.RemoteAddr,
			"error":       err.Error(),
		})
		return nil, &AuthError{
			Code:    "INVALID_API_KEY",
			Message: "Invalid API key",
			Status:  http.StatusUnauthorized,
		}
	}

	return &AuthContext{ClientID: claims.Subject, AuthType: "api_key"}, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := "UNAUTHORIZED"
	msg := err.Error()
	if authErr, ok := err.(*AuthError); ok {
		status = authErr.Status
		code = authErr.Code
		msg = authErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
