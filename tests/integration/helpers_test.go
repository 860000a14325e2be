//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/hasanat-app/hasanat/internal/identity"
)

// issueToken signs a session token for userID the way the auth service does.
func issueToken(t *testing.T, userID string) string {
	t.Helper()

	claims := identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
		},
		UserID: userID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

// postSync sends a raw sync request body with the given bearer token and
// returns the status code and response body.
func postSync(t *testing.T, token, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, testServer.URL+"/api/v1/sync", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// syncBatch posts entries as a typed batch and decodes the response.
func syncBatch(t *testing.T, token string, entries []map[string]any) batchResponse {
	t.Helper()

	body, err := json.Marshal(entries)
	require.NoError(t, err)

	status, data := postSync(t, token, string(body))
	require.Equal(t, http.StatusOK, status, "body: %s", data)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

type batchResponse struct {
	Success bool     `json:"success"`
	Synced  []string `json:"synced"`
	Failed  []struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"failed"`
}

type legacyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func entryJSON(id, entityType, action string, payload any) map[string]any {
	return map[string]any{
		"id":         id,
		"entityType": entityType,
		"action":     action,
		"payload":    payload,
	}
}

// truncateAll resets every sync table between tests.
func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `
		TRUNCATE bookmarks, journal_entries, mission_completions,
		         mission_progress, daily_activity, user_settings, reading_state
	`)
	require.NoError(t, err)
}

func countRows(t *testing.T, table, userID string) int {
	t.Helper()
	var n int
	err := testDB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM "+table+" WHERE user_id = $1", userID).Scan(&n)
	require.NoError(t, err)
	return n
}
