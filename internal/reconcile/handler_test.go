package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasanat-app/hasanat/internal/pkg/httputil"
)

func newTestHandler() (*Handler, *fakeRepo) {
	repo := newFakeRepo()
	return NewHandler(NewService(repo)), repo
}

func doSync(t *testing.T, h *Handler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), httputil.UserIDKey, userID))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSync_TypedBatch(t *testing.T) {
	h, repo := newTestHandler()

	body := `[
		{"id":"e1","entityType":"bookmark","action":"create","payload":{"surah_id":2,"verse_id":255,"label":"Ayat al-Kursi"}},
		{"id":"e2","entityType":"reading-position","action":"update","payload":{"surah_id":18,"verse_id":10,"page":294}}
	]`

	rec := doSync(t, h, "u1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"e1", "e2"}, resp.Synced)
	assert.Empty(t, resp.Failed)

	assert.Len(t, repo.bookmarks, 1)
	assert.Equal(t, 18, repo.reading["u1"].SurahID)
}

func TestSync_TypedBatchPartialFailure(t *testing.T) {
	h, _ := newTestHandler()

	body := `[
		{"id":"ok","entityType":"bookmark","action":"create","payload":{"surah_id":1,"verse_id":1}},
		{"id":"bad","entityType":"bookmark","action":"create","payload":{"surah_id":999,"verse_id":1}}
	]`

	rec := doSync(t, h, "u1", body)
	require.Equal(t, http.StatusOK, rec.Code, "partial failure is still a 200 with per-entry results")

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"ok"}, resp.Synced)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "bad", resp.Failed[0].ID)
}

func TestSync_LegacyObjectPayload(t *testing.T) {
	h, repo := newTestHandler()

	body := `{
		"bookmarks":[{"surah_id":1,"verse_id":1},{"surah_id":2,"verse_id":255}],
		"intentions":[{"client_id":"j-1","title":"dhikr"}],
		"settings":{"theme":"dark"},
		"readingState":{"surah_id":67,"verse_id":1}
	}`

	rec := doSync(t, h, "u1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LegacyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "imported 3 records (0 duplicates skipped)", resp.Message)

	assert.Len(t, repo.bookmarks, 2)
	assert.Equal(t, "dark", repo.settings["u1"]["theme"])
	assert.Equal(t, 67, repo.reading["u1"].SurahID)
	assert.Equal(t, 1, repo.bulkCalls["bookmarks"])
}

func TestSync_ShapeDetectionSkipsWhitespace(t *testing.T) {
	h, _ := newTestHandler()

	body := "\n\t  [{\"id\":\"e1\",\"entityType\":\"bookmark\",\"action\":\"create\",\"payload\":{\"surah_id\":1,\"verse_id\":1}}]"
	rec := doSync(t, h, "u1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"e1"}, resp.Synced)
}

func TestSync_BadRequests(t *testing.T) {
	h, _ := newTestHandler()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "empty body"},
		{"whitespace only", "   \n", "empty body"},
		{"not json", "hello", "invalid json"},
		{"truncated array", `[{"id":"e1"`, "invalid json"},
		{"truncated object", `{"bookmarks":`, "invalid json"},
		{"empty batch", `[]`, "empty batch"},
		{"empty legacy payload", `{}`, "empty payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doSync(t, h, "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}
}

func TestSync_RequiresAuthenticatedUser(t *testing.T) {
	h, repo := newTestHandler()

	rec := doSync(t, h, "", `[{"id":"e1","entityType":"bookmark","action":"create","payload":{"surah_id":1,"verse_id":1}}]`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, repo.bookmarks)
}

func TestSync_RejectsOversizedBody(t *testing.T) {
	h, _ := newTestHandler()

	big := `[{"id":"e1","entityType":"bookmark","action":"create","payload":{"surah_id":1,"verse_id":1,"label":"` +
		strings.Repeat("x", maxBodyBytes) + `"}}]`
	rec := doSync(t, h, "u1", big)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
