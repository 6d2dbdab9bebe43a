package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	mw := NewAuthMiddleware("test-secret", zap.NewNop())

	var gotUser string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("POST", "/api/v1/investigations", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", "alice"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "alice", gotUser)
}

func TestAuthMiddleware_RejectsBadToken(t *testing.T) {
	mw := NewAuthMiddleware("test-secret", zap.NewNop())
	handler := mw.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]string{
		"wrong secret": "Bearer " + signedToken(t, "other-secret", "alice"),
		"garbage":      "Bearer not-a-jwt",
		"missing":      "",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/investigations", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, 401, rec.Code)
		})
	}
}

func TestAuthMiddleware_DisabledWithoutSecret(t *testing.T) {
	mw := NewAuthMiddleware("", zap.NewNop())
	called := false
	handler := mw.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.True(t, called)
}
