package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "mdtodo/docs"
	"mdtodo/internal/config"
)

func newTestApp(t *testing.T, cfg config.Config) (*App, afero.Fs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fsys := afero.NewMemMapFs()
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "/todos"
	}
	a, err := NewWithFs(cfg, log.New(io.Discard), fsys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, fsys
}

func serve(a *App, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w
}

func TestApp_ServiceRoutes(t *testing.T) {
	a, fsys := newTestApp(t, config.Config{App: config.AppConfig{Env: "test", Version: "1.2.3"}})

	w := serve(a, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"env":"test"}`, w.Body.String())

	w = serve(a, http.MethodGet, "/version", "")
	assert.JSONEq(t, `{"version":"1.2.3"}`, w.Body.String())

	w = serve(a, http.MethodGet, "/swagger-doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/todos/reorder")

	w = serve(a, http.MethodPost, "/api/v1/todos", `{"title":"Water plants"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ok, err := afero.Exists(fsys, "/todos/Water-plants.md")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fsys, "/todos/Water-plants.meta.json")
	require.NoError(t, err)
	assert.True(t, ok)

	w = serve(a, http.MethodGet, "/api/v1/todos", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)

	w = serve(a, http.MethodPost, "/api/v1/migrate", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_CORS(t *testing.T) {
	a, _ := newTestApp(t, config.Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/todos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	a, _ := newTestApp(t, config.Config{Redis: config.RedisConfig{Addr: mr.Addr()}})
	require.NotNil(t, a.redis)

	w := serve(a, http.MethodPost, "/api/v1/todos", `{"title":"cached"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = serve(a, http.MethodGet, "/api/v1/todos", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mr.Exists("todo:list"))
}
