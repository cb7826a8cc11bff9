package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"mdtodo/internal/cache"
	dom "mdtodo/internal/domain"
	"mdtodo/internal/markdown"
	"mdtodo/internal/migrate"
	"mdtodo/internal/repo"
	"mdtodo/internal/search"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrNoMigrator     = errors.New("migration is not configured")
	errInvalidDueDate = fmt.Errorf("%w: dueDate must be YYYY-MM-DD", ErrValidation)
)

const dateLayout = "2006-01-02"

type Migrator interface {
	Run(ctx context.Context) (migrate.Report, error)
}

// invalidator is implemented by stores that keep an id index.
type invalidator interface {
	Invalidate()
}

type TodoService struct {
	repo     repo.TodoRepo
	cache    *cache.TodoCache
	md       *markdown.Converter
	migrator Migrator
	logger   *log.Logger
	now      func() time.Time
	sf       singleflight.Group
}

type Option func(*TodoService)

func WithMigrator(m Migrator) Option {
	return func(s *TodoService) { s.migrator = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *TodoService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *TodoService) { s.now = now }
}

func WithConverter(c *markdown.Converter) Option {
	return func(s *TodoService) { s.md = c }
}

// NewTodoService creates a TodoService. If c is nil, caching is disabled.
func NewTodoService(r repo.TodoRepo, c *cache.TodoCache, opts ...Option) *TodoService {
	s := &TodoService{
		repo:   r,
		cache:  c,
		md:     markdown.NewConverter(),
		logger: log.New(io.Discard),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	Title    string
	Content  string
	Priority dom.Priority
	Tags     []string
	Section  dom.Section
	DueDate  string
}

func (s *TodoService) Create(ctx context.Context, in CreateInput) (dom.Todo, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return dom.Todo{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Priority == "" {
		in.Priority = dom.PriorityMedium
	}
	if !in.Priority.Valid() {
		return dom.Todo{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, in.Priority)
	}
	if in.Section == "" {
		in.Section = dom.SectionToday
	}
	if !in.Section.Valid() {
		return dom.Todo{}, fmt.Errorf("%w: unknown section %q", ErrValidation, in.Section)
	}
	if err := validateDueDate(in.DueDate); err != nil {
		return dom.Todo{}, err
	}

	t, err := s.repo.Create(ctx, dom.Todo{
		Title:    title,
		Content:  s.md.ForStorage(in.Content),
		Priority: in.Priority,
		Tags:     dom.NormalizeTags(in.Tags),
		Section:  in.Section,
		DueDate:  in.DueDate,
	})
	if err != nil {
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx)
	return t, nil
}

// All returns every todo in display order, from cache when available.
func (s *TodoService) All(ctx context.Context) ([]dom.Todo, error) {
	if s.cache != nil {
		v, err, _ := s.sf.Do("list", func() (interface{}, error) {
			if list, err := s.cache.GetList(ctx); err == nil && list != nil {
				return list, nil
			}
			list, err := s.repo.List(ctx)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetList(ctx, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Todo), nil
	}
	return s.repo.List(ctx)
}

// List returns the todos matching f. A zero filter returns everything.
func (s *TodoService) List(ctx context.Context, f search.Filter) ([]dom.Todo, error) {
	f.Query = strings.TrimSpace(f.Query)
	if isZeroFilter(f) {
		return s.All(ctx)
	}
	key := filterKey(f)
	if s.cache != nil {
		v, err, _ := s.sf.Do("search:"+key, func() (interface{}, error) {
			if list, err := s.cache.GetSearch(ctx, key); err == nil && list != nil {
				return list, nil
			}
			all, err := s.All(ctx)
			if err != nil {
				return nil, err
			}
			list := search.Todos(all, f)
			_ = s.cache.SetSearch(ctx, key, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Todo), nil
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return search.Todos(all, f), nil
}

// Today is the service clock's current date as YYYY-MM-DD.
func (s *TodoService) Today() string {
	return s.now().Format(dateLayout)
}

// Overdue returns open todos whose due date has passed, earliest first.
func (s *TodoService) Overdue(ctx context.Context) ([]dom.Todo, error) {
	today := s.Today()
	load := func() ([]dom.Todo, error) {
		all, err := s.All(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]dom.Todo, 0)
		for _, t := range all {
			if t.IsOverdue(today) {
				out = append(out, t)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate < out[j].DueDate })
		return out, nil
	}
	if s.cache != nil {
		v, err, _ := s.sf.Do("overdue:"+today, func() (interface{}, error) {
			if list, err := s.cache.GetOverdue(ctx, today); err == nil && list != nil {
				return list, nil
			}
			list, err := load()
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetOverdue(ctx, today, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Todo), nil
	}
	return load()
}

// Tags lists every distinct tag in use, sorted.
func (s *TodoService) Tags(ctx context.Context) ([]string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return search.Tags(all), nil
}

func (s *TodoService) GetByID(ctx context.Context, id string) (dom.Todo, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dom.Todo{}, mapRepoErr(err)
	}
	return t, nil
}

// RenderHTML returns the todo body as sanitized HTML for the editor.
func (s *TodoService) RenderHTML(ctx context.Context, id string) (string, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.md.ForEditor(t.Content)
}

func (s *TodoService) Update(ctx context.Context, id string, p repo.Patch) (dom.Todo, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return dom.Todo{}, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		p.Title = &title
	}
	if p.Content != nil {
		content := s.md.ForStorage(*p.Content)
		p.Content = &content
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return dom.Todo{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
	}
	if p.Section != nil && !p.Section.Valid() {
		return dom.Todo{}, fmt.Errorf("%w: unknown section %q", ErrValidation, *p.Section)
	}
	if p.DueDate != nil {
		if err := validateDueDate(*p.DueDate); err != nil {
			return dom.Todo{}, err
		}
	}
	if p.Tags != nil {
		tags := dom.NormalizeTags(*p.Tags)
		p.Tags = &tags
	}

	t, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return dom.Todo{}, mapRepoErr(err)
	}
	s.invalidateCache(ctx)
	return t, nil
}

func (s *TodoService) Complete(ctx context.Context, id string) (dom.Todo, error) {
	done := true
	return s.Update(ctx, id, repo.Patch{Completed: &done})
}

// Delete reports false when the id is unknown.
func (s *TodoService) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidateCache(ctx)
	return true, nil
}

// MoveByPosition moves the todo at srcIndex of srcSection to dstIndex of dstSection.
func (s *TodoService) MoveByPosition(ctx context.Context, srcSection dom.Section, srcIndex int, dstSection dom.Section, dstIndex int) ([]dom.Todo, error) {
	list, err := s.repo.Move(ctx, srcSection, srcIndex, dstSection, dstIndex)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.invalidateCache(ctx)
	return list, nil
}

// MoveBefore places sourceID right before destinationID in section. An empty or
// unknown destination appends to the end of section.
func (s *TodoService) MoveBefore(ctx context.Context, sourceID, destinationID string, section dom.Section) ([]dom.Todo, error) {
	if !section.Valid() {
		return nil, fmt.Errorf("%w: unknown section %q", ErrValidation, section)
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	srcIndex := -1
	var srcSection dom.Section
	pos := map[dom.Section]int{}
	for _, t := range all {
		if t.ID == sourceID {
			srcSection = t.Section
			srcIndex = pos[t.Section]
		}
		pos[t.Section]++
	}
	if srcIndex < 0 {
		return nil, ErrNotFound
	}

	dstIndex := 0
	found := false
	for _, t := range all {
		if t.Section != section || t.ID == sourceID {
			continue
		}
		if t.ID == destinationID && destinationID != "" {
			found = true
			break
		}
		dstIndex++
	}
	if !found {
		s.logger.Debug("reorder destination not found, appending", "destination", destinationID, "section", section)
	}
	return s.MoveByPosition(ctx, srcSection, srcIndex, section, dstIndex)
}

// Migrate runs the metadata migration and drops every cached view.
func (s *TodoService) Migrate(ctx context.Context) (migrate.Report, error) {
	if s.migrator == nil {
		return migrate.Report{}, ErrNoMigrator
	}
	rep, err := s.migrator.Run(ctx)
	s.Invalidate(ctx)
	return rep, err
}

// Invalidate forgets cached lists and the store's id index, e.g. after external edits.
func (s *TodoService) Invalidate(ctx context.Context) {
	if inv, ok := s.repo.(invalidator); ok {
		inv.Invalidate()
	}
	s.invalidateCache(ctx)
}

func (s *TodoService) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("cache invalidation failed", "err", err)
		}
	}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrInvalidPosition):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

func validateDueDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return errInvalidDueDate
	}
	return nil
}

func isZeroFilter(f search.Filter) bool {
	return f.Query == "" && len(f.Tags) == 0 && len(f.Priorities) == 0 && f.Section == "" && !f.HideCompleted
}

func filterKey(f search.Filter) string {
	tags := append([]string(nil), f.Tags...)
	sort.Strings(tags)
	prios := make([]string, len(f.Priorities))
	for i, p := range f.Priorities {
		prios[i] = string(p)
	}
	sort.Strings(prios)
	return fmt.Sprintf("q=%s|tags=%s|prio=%s|section=%s|hide=%t",
		strings.ToLower(f.Query), strings.Join(tags, ","), strings.Join(prios, ","), f.Section, f.HideCompleted)
}
