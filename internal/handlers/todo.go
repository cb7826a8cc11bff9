package handlers

import (
	"errors"
	"net/http"
	"strings"

	dom "mdtodo/internal/domain"
	"mdtodo/internal/dto"
	"mdtodo/internal/repo"
	"mdtodo/internal/search"
	"mdtodo/internal/service"

	"github.com/gin-gonic/gin"
)

type TodoHandler struct {
	svc *service.TodoService
}

func NewTodoHandler(svc *service.TodoService) *TodoHandler {
	return &TodoHandler{svc: svc}
}

// Create godoc
// @Summary      Create a todo
// @Description  Content may be markdown or editor HTML; HTML is stored as markdown.
// @Tags         todos
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateTodoRequest  true  "Todo body"
// @Success      201   {object}  dto.TodoResponse
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /todos [post]
func (h *TodoHandler) Create(c *gin.Context) {
	var req dto.CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		Title:    req.Title,
		Content:  req.Content,
		Priority: dom.Priority(req.Priority),
		Tags:     req.Tags,
		Section:  dom.Section(req.Section),
		DueDate:  string(req.DueDate),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, todoToResponse(t))
}

// List godoc
// @Summary      List todos
// @Description  Without filters returns every todo grouped by section and ordered. With q the result is ranked by relevance.
// @Tags         todos
// @Produce      json
// @Param        q          query     string  false  "Fuzzy search over title, content and tags"
// @Param        tags       query     string  false  "Comma separated, matches any"
// @Param        priority   query     string  false  "Comma separated: high,medium,low"
// @Param        completed  query     bool    false  "false hides completed todos"
// @Param        section    query     string  false  "today, week or longterm"
// @Success      200  {object}  dto.ListTodosResponse
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /todos [get]
func (h *TodoHandler) List(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ListTodosResponse{Items: todosToResponses(list)})
}

// GetByID godoc
// @Summary      Get a todo by ID
// @Tags         todos
// @Produce      json
// @Param        id   path      string  true  "Todo ID"
// @Success      200  {object}  dto.TodoResponse
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /todos/{id} [get]
func (h *TodoHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(t))
}

// HTML godoc
// @Summary      Get a todo body as HTML
// @Description  Markdown content rendered and sanitized for the rich-text editor.
// @Tags         todos
// @Produce      json
// @Param        id   path      string  true  "Todo ID"
// @Success      200  {object}  dto.HTMLResponse
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /todos/{id}/html [get]
func (h *TodoHandler) HTML(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	html, err := h.svc.RenderHTML(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.HTMLResponse{ID: id, HTML: html})
}

// Update godoc
// @Summary      Update a todo
// @Description  Partial update. Changing the title renames the files, the id stays.
// @Tags         todos
// @Accept       json
// @Produce      json
// @Param        id    path      string  true  "Todo ID"
// @Param        body  body      dto.UpdateTodoRequest  true  "Partial update"
// @Success      200   {object}  dto.TodoResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /todos/{id} [patch]
func (h *TodoHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.svc.Update(c.Request.Context(), id, patchFromRequest(req))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(t))
}

// Delete godoc
// @Summary      Delete a todo
// @Tags         todos
// @Produce      json
// @Param        id   path  string  true  "Todo ID"
// @Success      200  {object}  dto.DeleteResponse
// @Failure      404  {object}  dto.DeleteResponse
// @Failure      500  {object}  map[string]string
// @Router       /todos/{id} [delete]
func (h *TodoHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, dto.DeleteResponse{Success: false})
		return
	}
	c.JSON(http.StatusOK, dto.DeleteResponse{Success: true})
}

// Complete godoc
// @Summary      Mark a todo as done
// @Tags         todos
// @Produce      json
// @Param        id   path      string  true  "Todo ID"
// @Success      200  {object}  dto.TodoResponse
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /todos/{id}/complete [post]
func (h *TodoHandler) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Complete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, todoToResponse(t))
}

// Reorder godoc
// @Summary      Reorder todos
// @Description  Either {sourceIndex, destinationIndex, sourceSection, destinationSection}
// @Description  or {sourceId, destinationId, section}. Returns the full list afterwards.
// @Tags         todos
// @Accept       json
// @Produce      json
// @Param        body  body      dto.ReorderRequest  true  "Move"
// @Success      200   {object}  dto.ListTodosResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /todos/reorder [patch]
func (h *TodoHandler) Reorder(c *gin.Context) {
	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		list []dom.Todo
		err  error
	)
	ctx := c.Request.Context()
	switch {
	case req.ByPosition():
		src, dst := dom.Section(req.SourceSection), dom.Section(req.DestinationSection)
		if src == "" {
			src = dom.SectionToday
		}
		if dst == "" {
			dst = src
		}
		list, err = h.svc.MoveByPosition(ctx, src, *req.SourceIndex, dst, *req.DestinationIndex)
	case req.ByID():
		dest := ""
		if req.DestinationID != nil {
			dest = *req.DestinationID
		}
		section := dom.Section(req.Section)
		if section == "" {
			section = dom.SectionToday
		}
		list, err = h.svc.MoveBefore(ctx, req.SourceID, dest, section)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "need sourceIndex and destinationIndex, or sourceId"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTodosResponse{Items: todosToResponses(list)})
}

// Overdue godoc
// @Summary      List overdue todos
// @Tags         todos
// @Produce      json
// @Success      200  {object}  dto.ListTodosResponse
// @Failure      500  {object}  map[string]string
// @Router       /todos/overdue [get]
func (h *TodoHandler) Overdue(c *gin.Context) {
	list, err := h.svc.Overdue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ListTodosResponse{Items: todosToResponses(list)})
}

// Tags godoc
// @Summary      List tags in use
// @Tags         tags
// @Produce      json
// @Success      200  {object}  dto.TagsResponse
// @Failure      500  {object}  map[string]string
// @Router       /tags [get]
func (h *TodoHandler) Tags(c *gin.Context) {
	tags, err := h.svc.Tags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.TagsResponse{Tags: tags})
}

// Migrate godoc
// @Summary      Run the metadata migration
// @Description  Backfills titles and slugs and repairs duplicate slugs. Safe to run repeatedly.
// @Tags         maintenance
// @Produce      json
// @Success      200  {object}  migrate.Report
// @Failure      500  {object}  map[string]string
// @Router       /migrate [post]
func (h *TodoHandler) Migrate(c *gin.Context) {
	rep, err := h.svc.Migrate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func parseID(c *gin.Context, name string) (string, bool) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" || strings.ContainsAny(id, `/\`) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return "", false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func filterFromQuery(c *gin.Context) (search.Filter, error) {
	f := search.Filter{
		Query:   c.Query("q"),
		Tags:    splitList(c.Query("tags")),
		Section: dom.Section(c.Query("section")),
	}
	if f.Section != "" && !f.Section.Valid() {
		return f, errors.New("unknown section")
	}
	for _, p := range splitList(c.Query("priority")) {
		prio := dom.Priority(p)
		if !prio.Valid() {
			return f, errors.New("unknown priority " + p)
		}
		f.Priorities = append(f.Priorities, prio)
	}
	if v := c.Query("completed"); v == "false" || v == "0" {
		f.HideCompleted = true
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func patchFromRequest(req dto.UpdateTodoRequest) repo.Patch {
	p := repo.Patch{
		Title:     req.Title,
		Content:   req.Content,
		Completed: req.Completed,
		Tags:      req.Tags,
	}
	if req.Priority != nil {
		prio := dom.Priority(*req.Priority)
		p.Priority = &prio
	}
	if req.Section != nil {
		sec := dom.Section(*req.Section)
		p.Section = &sec
	}
	if req.DueDate != nil {
		due := string(*req.DueDate)
		p.DueDate = &due
	}
	return p
}

func todoToResponse(t dom.Todo) dto.TodoResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	var due *string
	if t.DueDate != "" {
		d := t.DueDate
		due = &d
	}
	return dto.TodoResponse{
		Meta: dto.TodoMeta{
			ID:        t.ID,
			Title:     t.Title,
			Slug:      t.Slug,
			Completed: t.Completed,
			Priority:  string(t.Priority),
			Tags:      tags,
			Section:   string(t.Section),
			Order:     t.Order,
			DueDate:   due,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		},
		Content: t.Content,
	}
}

func todosToResponses(list []dom.Todo) []dto.TodoResponse {
	out := make([]dto.TodoResponse, len(list))
	for i := range list {
		out[i] = todoToResponse(list[i])
	}
	return out
}
