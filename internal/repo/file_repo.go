package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	dom "mdtodo/internal/domain"
	"mdtodo/internal/filename"
	"mdtodo/internal/markdown"
)

// FileTodoRepo stores each todo as <base>.md plus <base>.meta.json in one directory.
// The base name follows the title; the id inside the metadata is the stable key.
type FileTodoRepo struct {
	fs     afero.Fs
	dir    string
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	index map[string]string // id -> base
}

type Option func(*FileTodoRepo)

func WithLogger(l *log.Logger) Option {
	return func(r *FileTodoRepo) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *FileTodoRepo) { r.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *FileTodoRepo) { r.newID = gen }
}

func NewFileTodoRepo(fsys afero.Fs, dir string, opts ...Option) (*FileTodoRepo, error) {
	r := &FileTodoRepo{
		fs:     fsys,
		dir:    dir,
		logger: log.New(io.Discard),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		index:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create todos dir: %w", err)
	}
	return r, nil
}

// Dir is the directory holding the record files.
func (r *FileTodoRepo) Dir() string { return r.dir }

// record is a todo together with the base name it is stored under.
type record struct {
	base string
	todo dom.Todo
	// legacy records carry their title as a heading in the .md file
	legacy bool
}

func (r *FileTodoRepo) List(ctx context.Context) ([]dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return todosOf(recs), nil
}

func (r *FileTodoRepo) GetByID(ctx context.Context, id string) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.locateLocked(ctx, id)
	if err != nil {
		return dom.Todo{}, err
	}
	return rec.todo, nil
}

func (r *FileTodoRepo) Create(ctx context.Context, t dom.Todo) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.loadLocked(ctx)
	if err != nil {
		return dom.Todo{}, err
	}
	taken, err := r.takenBasesLocked()
	if err != nil {
		return dom.Todo{}, err
	}

	now := r.now()
	t.ID = r.newID()
	if !t.Section.Valid() {
		t.Section = dom.SectionToday
	}
	if !t.Priority.Valid() {
		t.Priority = dom.PriorityMedium
	}
	t.Tags = dom.NormalizeTags(t.Tags)
	t.Order = maxOrder(recs, t.Section) + 1
	t.Slug = uniqueSlug(t.Title, t.ID, recs)
	t.CreatedAt = now
	t.UpdatedAt = now

	base := r.uniqueBase(t.Title, t.ID, taken)
	if err := r.writePair(ctx, base, t, true, true); err != nil {
		r.removePair(base)
		return dom.Todo{}, err
	}
	r.index[t.ID] = base
	return t, nil
}

func (r *FileTodoRepo) Update(ctx context.Context, id string, p Patch) (dom.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.locateLocked(ctx, id)
	if err != nil {
		return dom.Todo{}, err
	}
	old := rec.todo
	t := old

	titleChanged := p.Title != nil && *p.Title != old.Title
	contentChanged := p.Content != nil && *p.Content != old.Content
	sectionChanged := p.Section != nil && *p.Section != old.Section && p.Section.Valid()

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil && p.Priority.Valid() {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = dom.NormalizeTags(*p.Tags)
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	t.UpdatedAt = r.now()

	var recs []record
	if titleChanged || sectionChanged {
		if recs, err = r.loadLocked(ctx); err != nil {
			return dom.Todo{}, err
		}
	}
	if titleChanged {
		t.Slug = uniqueSlug(t.Title, t.ID, recs)
	}
	if sectionChanged {
		t.Section = *p.Section
		t.Order = maxOrder(recs, t.Section) + 1
	}

	renamed := false
	if titleChanged {
		taken, err := r.takenBasesLocked()
		if err != nil {
			return dom.Todo{}, err
		}
		delete(taken, strings.ToLower(rec.base))
		if base := r.uniqueBase(t.Title, t.ID, taken); base != rec.base {
			// a case-only rename can address the same files on case-insensitive volumes
			caseOnly := strings.EqualFold(base, rec.base)
			var stashed []string
			if caseOnly {
				if stashed, err = r.stashFiles(rec.base); err != nil {
					return dom.Todo{}, err
				}
			}
			// new pair first, so the id stays reachable if the old one cannot be removed
			if err := r.writePair(ctx, base, t, true, true); err != nil {
				r.removePair(base)
				r.unstashFiles(stashed)
				return dom.Todo{}, err
			}
			if caseOnly {
				for _, name := range stashed {
					if err := r.fs.Remove(name + stashSuffix); err != nil {
						r.logger.Warn("remove renamed record", "path", name, "err", err)
					}
				}
			} else if err := r.removeFiles(rec.base); err != nil {
				r.logger.Warn("remove renamed record", "base", rec.base, "err", err)
			}
			r.index[t.ID] = base
			renamed = true
		}
	}
	if !renamed {
		if err := r.writePair(ctx, rec.base, t, true, contentChanged || rec.legacy); err != nil {
			return dom.Todo{}, err
		}
		r.index[t.ID] = rec.base
	}

	if sectionChanged {
		if err := r.renumberLocked(ctx, recs, old.Section, t.ID); err != nil {
			return dom.Todo{}, err
		}
	}
	return t, nil
}

func (r *FileTodoRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.locateLocked(ctx, id)
	if err != nil {
		return err
	}
	if err := r.removeFiles(rec.base); err != nil {
		return err
	}
	delete(r.index, id)

	recs, err := r.loadLocked(ctx)
	if err != nil {
		return err
	}
	return r.renumberLocked(ctx, recs, rec.todo.Section, id)
}

// Move takes the todo at srcIndex of srcSection and inserts it at dstIndex of dstSection.
// Indexes are zero-based positions in the section's ordered list; dstIndex is clamped.
func (r *FileTodoRepo) Move(ctx context.Context, srcSection dom.Section, srcIndex int, dstSection dom.Section, dstIndex int) ([]dom.Todo, error) {
	if !srcSection.Valid() || !dstSection.Valid() {
		return nil, fmt.Errorf("%w: unknown section", ErrInvalidPosition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	groups := groupBySection(recs)

	src := groups[srcSection]
	if srcIndex < 0 || srcIndex >= len(src) {
		return nil, fmt.Errorf("%w: source index %d out of range", ErrInvalidPosition, srcIndex)
	}
	moved := src[srcIndex]
	groups[srcSection] = append(src[:srcIndex:srcIndex], src[srcIndex+1:]...)

	dst := groups[dstSection]
	dstIndex = max(0, min(dstIndex, len(dst)))
	out := make([]record, 0, len(dst)+1)
	out = append(out, dst[:dstIndex]...)
	out = append(out, moved)
	out = append(out, dst[dstIndex:]...)
	groups[dstSection] = out

	now := r.now()
	var dirty []record
	for _, sec := range dom.Sections {
		list := groups[sec]
		for i := range list {
			t := &list[i].todo
			if t.Order == i+1 && t.Section == sec {
				continue
			}
			t.Order = i + 1
			t.Section = sec
			t.UpdatedAt = now
			dirty = append(dirty, list[i])
		}
	}
	if err := r.persistLocked(ctx, dirty); err != nil {
		return nil, err
	}

	var todos []dom.Todo
	for _, sec := range dom.Sections {
		for _, rec := range groups[sec] {
			todos = append(todos, rec.todo)
		}
	}
	return todos, nil
}

// Invalidate drops the id index; the next lookup rescans the directory.
func (r *FileTodoRepo) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[string]string)
}

// loadLocked reads every record in the directory, skipping broken ones, and
// rebuilds the index.
func (r *FileTodoRepo) loadLocked(ctx context.Context) ([]record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return nil, fmt.Errorf("read todos dir: %w", err)
	}

	byID := make(map[string]int)
	var recs []record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, metaSuffix)
		rec, err := r.readRecord(base)
		if err != nil {
			r.logger.Warn("skip record", "file", name, "err", err)
			continue
		}
		if i, dup := byID[rec.todo.ID]; dup {
			r.logger.Warn("duplicate record id", "id", rec.todo.ID, "file", name, "other", recs[i].base+metaSuffix)
			if rec.todo.UpdatedAt.After(recs[i].todo.UpdatedAt) {
				recs[i] = rec
			}
			continue
		}
		byID[rec.todo.ID] = len(recs)
		recs = append(recs, rec)
	}

	sortRecords(recs)

	r.index = make(map[string]string, len(recs))
	for _, rec := range recs {
		r.index[rec.todo.ID] = rec.base
	}
	return recs, nil
}

func (r *FileTodoRepo) readRecord(base string) (record, error) {
	data, err := afero.ReadFile(r.fs, r.path(base, metaSuffix))
	if err != nil {
		return record{}, err
	}
	m, err := decodeMeta(data)
	if err != nil {
		return record{}, err
	}

	content := ""
	body, err := afero.ReadFile(r.fs, r.path(base, contentSuffix))
	switch {
	case err == nil:
		content = string(body)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return record{}, err
	}

	rec := record{base: base}
	if m.Title == "" {
		rec.legacy = true
		m.Title = markdown.ExtractTitle(content)
		if m.Title == "" {
			m.Title = markdown.UntitledTitle
		}
		content = markdown.StripTitle(content)
	}
	rec.todo = m.toDomain(content)
	return rec, nil
}

// locateLocked resolves id via the index, then the legacy <id> layout, then a rescan.
func (r *FileTodoRepo) locateLocked(ctx context.Context, id string) (record, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return record{}, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return record{}, err
	}
	if base, ok := r.index[id]; ok {
		if rec, err := r.readRecord(base); err == nil && rec.todo.ID == id {
			return rec, nil
		}
	}
	if rec, err := r.readRecord(id); err == nil && rec.todo.ID == id {
		r.index[id] = id
		return rec, nil
	}

	recs, err := r.loadLocked(ctx)
	if err != nil {
		return record{}, err
	}
	for _, rec := range recs {
		if rec.todo.ID == id {
			return rec, nil
		}
	}
	return record{}, ErrNotFound
}

// takenBasesLocked returns the lower-cased base names present on disk.
func (r *FileTodoRepo) takenBasesLocked() (map[string]bool, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return nil, fmt.Errorf("read todos dir: %w", err)
	}
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, metaSuffix):
			taken[strings.ToLower(strings.TrimSuffix(name, metaSuffix))] = true
		case strings.HasSuffix(name, contentSuffix):
			taken[strings.ToLower(strings.TrimSuffix(name, contentSuffix))] = true
		}
	}
	return taken, nil
}

// uniqueBase picks the first free candidate for title that is also a valid
// file name. Suffixed candidates of a maximum-length title fall through to
// the timestamp name.
func (r *FileTodoRepo) uniqueBase(title, id string, taken map[string]bool) string {
	if base := filename.FromTitle(title); base != "" {
		for _, c := range filename.Candidates(base) {
			if filename.Validate(c) != nil {
				continue
			}
			if !taken[strings.ToLower(c)] {
				return c
			}
		}
	}
	fallback := filename.Fallback(r.now())
	if !taken[strings.ToLower(fallback)] {
		return fallback
	}
	return fallback + "-" + shortID(id)
}

func uniqueSlug(title, id string, recs []record) string {
	used := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if rec.todo.ID != id && rec.todo.Slug != "" {
			used[rec.todo.Slug] = true
		}
	}
	base := filename.Slug(title)
	if base == "" {
		base = "todo-" + shortID(id)
	}
	slug := base
	for i := 2; used[slug]; i++ {
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return slug
}

// renumberLocked rewrites orders of section to 1..N, ignoring the record skipID.
func (r *FileTodoRepo) renumberLocked(ctx context.Context, recs []record, section dom.Section, skipID string) error {
	now := r.now()
	var dirty []record
	n := 0
	for _, rec := range recs {
		if rec.todo.Section != section || rec.todo.ID == skipID {
			continue
		}
		n++
		if rec.todo.Order == n {
			continue
		}
		rec.todo.Order = n
		rec.todo.UpdatedAt = now
		dirty = append(dirty, rec)
	}
	return r.persistLocked(ctx, dirty)
}

// persistLocked rewrites metadata of each record. Legacy records get their
// content rewritten too so the heading is not read back as a second title.
func (r *FileTodoRepo) persistLocked(ctx context.Context, recs []record) error {
	for _, rec := range recs {
		if err := r.writePair(ctx, rec.base, rec.todo, true, rec.legacy); err != nil {
			return err
		}
	}
	return nil
}

// writePair writes the requested artifacts of a record concurrently.
func (r *FileTodoRepo) writePair(ctx context.Context, base string, t dom.Todo, meta, content bool) error {
	g, ctx := errgroup.WithContext(ctx)
	if meta {
		g.Go(func() error {
			data, err := encodeMeta(t)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			return r.atomicWrite(ctx, r.path(base, metaSuffix), data)
		})
	}
	if content {
		g.Go(func() error {
			return r.atomicWrite(ctx, r.path(base, contentSuffix), []byte(t.Content))
		})
	}
	return g.Wait()
}

func (r *FileTodoRepo) atomicWrite(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := path + tmpSuffix
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := r.fs.Rename(tmp, path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// removeFiles deletes both artifacts of base. A missing content file is fine.
func (r *FileTodoRepo) removeFiles(base string) error {
	if err := r.fs.Remove(r.path(base, metaSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := r.fs.Remove(r.path(base, contentSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove content: %w", err)
	}
	return nil
}

// stashFiles moves the existing artifacts of base to stash names and returns
// their original paths.
func (r *FileTodoRepo) stashFiles(base string) ([]string, error) {
	var moved []string
	for _, suffix := range []string{metaSuffix, contentSuffix} {
		p := r.path(base, suffix)
		ok, err := afero.Exists(r.fs, p)
		if err != nil {
			r.unstashFiles(moved)
			return nil, err
		}
		if !ok {
			continue
		}
		if err := r.fs.Rename(p, p+stashSuffix); err != nil {
			r.unstashFiles(moved)
			return nil, fmt.Errorf("stash %s: %w", filepath.Base(p), err)
		}
		moved = append(moved, p)
	}
	return moved, nil
}

func (r *FileTodoRepo) unstashFiles(paths []string) {
	for _, p := range paths {
		if err := r.fs.Rename(p+stashSuffix, p); err != nil {
			r.logger.Warn("restore stashed file", "path", p, "err", err)
		}
	}
}

// removePair cleans up after a failed pair write, including temp files.
func (r *FileTodoRepo) removePair(base string) {
	for _, suffix := range []string{metaSuffix, contentSuffix, metaSuffix + tmpSuffix, contentSuffix + tmpSuffix} {
		_ = r.fs.Remove(r.path(base, suffix))
	}
}

func (r *FileTodoRepo) path(base, suffix string) string {
	return filepath.Join(r.dir, base+suffix)
}

func sortRecords(recs []record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].todo, recs[j].todo
		if ra, rb := a.Section.Rank(), b.Section.Rank(); ra != rb {
			return ra < rb
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func groupBySection(recs []record) map[dom.Section][]record {
	groups := make(map[dom.Section][]record, len(dom.Sections))
	for _, rec := range recs {
		groups[rec.todo.Section] = append(groups[rec.todo.Section], rec)
	}
	return groups
}

func maxOrder(recs []record, section dom.Section) int {
	m := 0
	for _, rec := range recs {
		if rec.todo.Section == section && rec.todo.Order > m {
			m = rec.todo.Order
		}
	}
	return m
}

func todosOf(recs []record) []dom.Todo {
	out := make([]dom.Todo, len(recs))
	for i, rec := range recs {
		out[i] = rec.todo
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
