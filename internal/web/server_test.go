package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahida1027/surveybot/internal/service"
	"github.com/nahida1027/surveybot/internal/store"
)

func newTestServer(token string) (*Server, *service.Catalog, *service.Sessions) {
	st := store.NewMemory()
	catalog := service.NewCatalog(st)
	sessions := service.NewSessions(st)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(catalog, sessions, token, log), catalog, sessions
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer("")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuth(t *testing.T) {
	srv, _, _ := newTestServer("secret")
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/questions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateListUpdate(t *testing.T) {
	srv, _, _ := newTestServer("")
	router := srv.Router()

	body := `{"category":"food","text":"Pick one","type":"branch",` +
		`"options":[{"label":"pizza","next":2}],"skippable":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 1, created["id"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/questions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []service.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Pick one", listed[0].Text)
	assert.Equal(t, service.TypeBranch, listed[0].Type)
	assert.True(t, listed[0].Skippable)

	update := `{"category":"food","text":"Pick two"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/questions/1", bytes.NewBufferString(update)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/questions/99", bytes.NewBufferString(update)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewBufferString(`{"text":"no category"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAllAndSessions(t *testing.T) {
	srv, catalog, sessions := newTestServer("")
	router := srv.Router()
	ctx := context.Background()

	_, err := catalog.Create(ctx, service.Question{Category: "food", Text: "one", Type: service.TypeNormal})
	require.NoError(t, err)
	require.NoError(t, sessions.Save(ctx, service.NewSession(42, "food", 1)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/questions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/questions", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}
