package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdtodo/internal/dto"
	"mdtodo/internal/migrate"
	"mdtodo/internal/repo"
	"mdtodo/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fsys := afero.NewMemMapFs()
	r, err := repo.NewFileTodoRepo(fsys, "/todos")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC) }
	svc := service.NewTodoService(r, nil,
		service.WithClock(clock),
		service.WithMigrator(migrate.New(fsys, "/todos")),
	)
	h := NewTodoHandler(svc)

	e := gin.New()
	api := e.Group("/api/v1")
	api.POST("/todos", h.Create)
	api.GET("/todos", h.List)
	api.GET("/todos/overdue", h.Overdue)
	api.PATCH("/todos/reorder", h.Reorder)
	api.GET("/todos/:id", h.GetByID)
	api.GET("/todos/:id/html", h.HTML)
	api.PATCH("/todos/:id", h.Update)
	api.DELETE("/todos/:id", h.Delete)
	api.POST("/todos/:id/complete", h.Complete)
	api.GET("/tags", h.Tags)
	api.POST("/migrate", h.Migrate)
	return e
}

func do(t *testing.T, e *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createTodo(t *testing.T, e *gin.Engine, body gin.H) dto.TodoResponse {
	t.Helper()
	w := do(t, e, http.MethodPost, "/api/v1/todos", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.TodoResponse](t, w)
}

func itemTitles(items []dto.TodoResponse) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Meta.Title
	}
	return out
}

func TestCreateAndGet(t *testing.T) {
	e := newTestRouter(t)

	td := createTodo(t, e, gin.H{"title": "Buy milk", "tags": []string{"home"}, "dueDate": "tomorrow"})
	assert.NotEmpty(t, td.Meta.ID)
	assert.Equal(t, "medium", td.Meta.Priority)
	assert.Equal(t, "today", td.Meta.Section)
	assert.Equal(t, 1, td.Meta.Order)
	require.NotNil(t, td.Meta.DueDate)

	w := do(t, e, http.MethodGet, "/api/v1/todos/"+td.Meta.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.TodoResponse](t, w)
	assert.Equal(t, "Buy milk", got.Meta.Title)
	assert.Equal(t, []string{"home"}, got.Meta.Tags)

	w = do(t, e, http.MethodGet, "/api/v1/todos/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreate_BadRequest(t *testing.T) {
	e := newTestRouter(t)

	for _, body := range []gin.H{
		{},
		{"title": "x", "priority": "urgent"},
		{"title": "x", "section": "someday"},
		{"title": "x", "dueDate": "zzz qqq"},
	} {
		w := do(t, e, http.MethodPost, "/api/v1/todos", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := do(t, e, http.MethodPost, "/api/v1/todos", gin.H{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWithFilters(t *testing.T) {
	e := newTestRouter(t)
	createTodo(t, e, gin.H{"title": "Buy milk", "tags": []string{"home"}, "priority": "low"})
	report := createTodo(t, e, gin.H{"title": "Write report", "tags": []string{"work"}, "priority": "high"})
	createTodo(t, e, gin.H{"title": "Plan trip", "section": "week"})

	w := do(t, e, http.MethodGet, "/api/v1/todos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.ListTodosResponse](t, w)
	assert.Equal(t, []string{"Buy milk", "Write report", "Plan trip"}, itemTitles(list.Items))

	w = do(t, e, http.MethodGet, "/api/v1/todos?q=milk", nil)
	assert.Equal(t, []string{"Buy milk"}, itemTitles(decode[dto.ListTodosResponse](t, w).Items))

	w = do(t, e, http.MethodGet, "/api/v1/todos?priority=high,low&section=today", nil)
	assert.Equal(t, []string{"Buy milk", "Write report"}, itemTitles(decode[dto.ListTodosResponse](t, w).Items))

	w = do(t, e, http.MethodGet, "/api/v1/todos?tags=work", nil)
	assert.Equal(t, []string{"Write report"}, itemTitles(decode[dto.ListTodosResponse](t, w).Items))

	w = do(t, e, http.MethodPost, "/api/v1/todos/"+report.Meta.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, e, http.MethodGet, "/api/v1/todos?completed=false", nil)
	assert.Equal(t, []string{"Buy milk", "Plan trip"}, itemTitles(decode[dto.ListTodosResponse](t, w).Items))

	w = do(t, e, http.MethodGet, "/api/v1/todos?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodGet, "/api/v1/tags", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"home", "work"}, decode[dto.TagsResponse](t, w).Tags)
}

func TestUpdate(t *testing.T) {
	e := newTestRouter(t)
	td := createTodo(t, e, gin.H{"title": "Draft", "dueDate": "2025-06-01"})

	w := do(t, e, http.MethodPatch, "/api/v1/todos/"+td.Meta.ID, gin.H{"title": "Final", "content": "<p><strong>done</strong></p>", "dueDate": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[dto.TodoResponse](t, w)
	assert.Equal(t, td.Meta.ID, got.Meta.ID)
	assert.Equal(t, "Final", got.Meta.Title)
	assert.Equal(t, "**done**", got.Content)
	assert.Nil(t, got.Meta.DueDate)

	w = do(t, e, http.MethodPatch, "/api/v1/todos/"+td.Meta.ID, gin.H{"section": "someday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodPatch, "/api/v1/todos/missing", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, e, http.MethodGet, "/api/v1/todos/"+td.Meta.ID+"/html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[dto.HTMLResponse](t, w).HTML, "<strong>done</strong>")
}

func TestDelete(t *testing.T) {
	e := newTestRouter(t)
	td := createTodo(t, e, gin.H{"title": "gone"})

	w := do(t, e, http.MethodDelete, "/api/v1/todos/"+td.Meta.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.DeleteResponse](t, w).Success)

	w = do(t, e, http.MethodDelete, "/api/v1/todos/"+td.Meta.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode[dto.DeleteResponse](t, w).Success)
}

func TestReorder(t *testing.T) {
	e := newTestRouter(t)
	a := createTodo(t, e, gin.H{"title": "a"})
	createTodo(t, e, gin.H{"title": "b"})
	c := createTodo(t, e, gin.H{"title": "c"})

	w := do(t, e, http.MethodPatch, "/api/v1/todos/reorder", gin.H{
		"sourceIndex": 0, "destinationIndex": 0, "sourceSection": "today", "destinationSection": "week",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[dto.ListTodosResponse](t, w)
	assert.Equal(t, []string{"b", "c", "a"}, itemTitles(list.Items))
	assert.Equal(t, "week", list.Items[2].Meta.Section)
	assert.Equal(t, 1, list.Items[2].Meta.Order)

	w = do(t, e, http.MethodPatch, "/api/v1/todos/reorder", gin.H{
		"sourceId": a.Meta.ID, "destinationId": c.Meta.ID, "section": "today",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list = decode[dto.ListTodosResponse](t, w)
	assert.Equal(t, []string{"b", "a", "c"}, itemTitles(list.Items))
	for i, it := range list.Items {
		assert.Equal(t, i+1, it.Meta.Order)
	}

	w = do(t, e, http.MethodPatch, "/api/v1/todos/reorder", gin.H{
		"sourceIndex": 9, "destinationIndex": 0, "sourceSection": "today",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodPatch, "/api/v1/todos/reorder", gin.H{"section": "today"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodPatch, "/api/v1/todos/reorder", gin.H{"sourceId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverdue(t *testing.T) {
	e := newTestRouter(t)
	createTodo(t, e, gin.H{"title": "late", "dueDate": "2025-05-01"})
	createTodo(t, e, gin.H{"title": "future", "dueDate": "2030-01-01"})

	w := do(t, e, http.MethodGet, "/api/v1/todos/overdue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"late"}, itemTitles(decode[dto.ListTodosResponse](t, w).Items))
}

func TestMigrate(t *testing.T) {
	e := newTestRouter(t)
	createTodo(t, e, gin.H{"title": "one"})

	w := do(t, e, http.MethodPost, "/api/v1/migrate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[migrate.Report](t, w)
	assert.Zero(t, rep.Changed())
}
