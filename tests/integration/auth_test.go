//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBatch = `[{"id":"e1","entityType":"bookmark","action":"create","payload":{"surah_id":1,"verse_id":1}}]`

func TestSync_RejectsUnauthenticatedRequests(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := postSync(t, tt.token, validBatch)
			assert.Equal(t, http.StatusUnauthorized, status)
		})
	}
}

func TestSync_RejectsForeignSecret(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("a-different-secret-key-entirely-0000"))
	require.NoError(t, err)

	status, _ := postSync(t, token, validBatch)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSync_RejectsExpiredToken(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	status, _ := postSync(t, token, validBatch)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(testServer.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}
