package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "fitsession"}

func TestSignAndParse(t *testing.T) {
	token, err := Sign(testConfig, "bridge-1", []string{ScopeSessionWrite}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "bridge-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeSessionWrite))
	require.False(t, claims.HasScope(ScopeSessionRead))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = Parse("not-a-jwt", testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Wrong secret.
	token, err := Sign(Config{Secret: "other", Issuer: "fitsession"}, "x", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Wrong issuer.
	token, err = Sign(Config{Secret: "test-secret", Issuer: "someone-else"}, "x", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	token, err = Sign(testConfig, "x", nil, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsMissingSubject(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestScopeStringForms(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "dashboard",
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "session:read session:write",
	})
	token, err := raw.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeSessionRead))
	require.True(t, claims.HasScope(ScopeSessionWrite))
}

func TestMiddleware(t *testing.T) {
	var gotClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	skipper := func(r *http.Request) bool { return r.URL.Path == "/healthz" }
	wrapped := NewMiddleware(testConfig, skipper).Wrap(next)

	// Missing token.
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Skipped path passes through without claims.
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, gotClaims)

	// Valid token lands claims on the context.
	token, err := Sign(testConfig, "dashboard", []string{ScopeSessionRead}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, gotClaims)
	require.Equal(t, "dashboard", gotClaims.Subject)
}
