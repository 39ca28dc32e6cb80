package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/StudioReviews/pkg/logger"
)

var testSecret = []byte("test-secret-key-for-admin-tokens")

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func adminClaims(subject string, ttl time.Duration) Claims {
	return Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "studio-reviews",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestNewJWTValidator(t *testing.T) {
	validate := NewJWTValidator(testSecret, "studio-reviews")

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr bool
	}{
		{
			name:  "valid admin token",
			token: func(t *testing.T) string { return signToken(t, testSecret, adminClaims("admin-1", time.Hour)) },
		},
		{
			name:    "expired token",
			token:   func(t *testing.T) string { return signToken(t, testSecret, adminClaims("admin-1", -time.Hour)) },
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   func(t *testing.T) string { return signToken(t, []byte("other"), adminClaims("admin-1", time.Hour)) },
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := adminClaims("admin-1", time.Hour)
				c.Issuer = "someone-else"
				return signToken(t, testSecret, c)
			},
			wantErr: true,
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				c := adminClaims("admin-1", time.Hour)
				c.ExpiresAt = nil
				return signToken(t, testSecret, c)
			},
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   func(t *testing.T) string { return signToken(t, testSecret, adminClaims("", time.Hour)) },
			wantErr: true,
		},
		{
			name: "none algorithm",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, adminClaims("admin-1", time.Hour))
				s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not.a.jwt" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := validate(tt.token(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "admin-1", claims.Subject)
			assert.Equal(t, RoleAdmin, claims.Role)
		})
	}
}

func TestAuth_RejectsMissingAndMalformedHeaders(t *testing.T) {
	var buf bytes.Buffer
	mw := Auth(NewJWTValidator(testSecret, ""), newTestLogger(&buf))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   ", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reviews", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rr.Body.Bytes()))
	}
}

func TestAuth_StoresActorAndRole(t *testing.T) {
	var buf bytes.Buffer
	mw := Auth(NewJWTValidator(testSecret, ""), newTestLogger(&buf))

	var actor, role string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = logger.ActorFromContext(r.Context())
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reviews", nil)
	req.Header.Set("Authorization", "bearer "+signToken(t, testSecret, adminClaims("mod-9", time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "mod-9", actor)
	assert.Equal(t, RoleAdmin, role)
}

func TestRequireRole(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	validate := NewJWTValidator(testSecret, "")

	handler := Auth(validate, l)(RequireRole(l, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, adminClaims("a", time.Hour)))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("other role forbidden", func(t *testing.T) {
		c := adminClaims("u", time.Hour)
		c.Role = "customer"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, c))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rr.Body.Bytes()))
	})
}
