// Package migrate upgrades todo metadata written by older versions in place.
// Every step is idempotent; running Run twice changes nothing the second time.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"mdtodo/internal/filename"
	"mdtodo/internal/markdown"
)

const (
	metaSuffix    = ".meta.json"
	contentSuffix = ".md"
)

type Migrator struct {
	fs     afero.Fs
	dir    string
	logger *log.Logger
	now    func() time.Time
}

type Option func(*Migrator)

func WithLogger(l *log.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

func New(fsys afero.Fs, dir string, opts ...Option) *Migrator {
	m := &Migrator{
		fs:     fsys,
		dir:    dir,
		logger: log.New(io.Discard),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type FileError struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

type Report struct {
	TitlesBackfilled int         `json:"titlesBackfilled"`
	SlugsBackfilled  int         `json:"slugsBackfilled"`
	DuplicatesFixed  int         `json:"duplicatesFixed"`
	Errors           []FileError `json:"errors"`
}

// Changed counts the files rewritten across all steps.
func (r Report) Changed() int {
	return r.TitlesBackfilled + r.SlugsBackfilled + r.DuplicatesFixed
}

// Run backfills titles, then slugs, then repairs duplicate slugs.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	rep := Report{Errors: []FileError{}}
	steps := []struct {
		name  string
		fn    func(context.Context, *Report) (int, error)
		count *int
	}{
		{"titles", m.backfillTitles, &rep.TitlesBackfilled},
		{"slugs", m.backfillSlugs, &rep.SlugsBackfilled},
		{"duplicate slugs", m.fixDuplicateSlugs, &rep.DuplicatesFixed},
	}
	for _, s := range steps {
		n, err := s.fn(ctx, &rep)
		if err != nil {
			return rep, fmt.Errorf("migrate %s: %w", s.name, err)
		}
		*s.count = n
		m.logger.Info("migration step done", "step", s.name, "changed", n)
	}
	return rep, nil
}

func (m *Migrator) BackfillTitles(ctx context.Context) (Report, error) {
	rep := Report{Errors: []FileError{}}
	n, err := m.backfillTitles(ctx, &rep)
	rep.TitlesBackfilled = n
	return rep, err
}

func (m *Migrator) BackfillSlugs(ctx context.Context) (Report, error) {
	rep := Report{Errors: []FileError{}}
	n, err := m.backfillSlugs(ctx, &rep)
	rep.SlugsBackfilled = n
	return rep, err
}

func (m *Migrator) FixDuplicateSlugs(ctx context.Context) (Report, error) {
	rep := Report{Errors: []FileError{}}
	n, err := m.fixDuplicateSlugs(ctx, &rep)
	rep.DuplicatesFixed = n
	return rep, err
}

func (m *Migrator) backfillTitles(ctx context.Context, rep *Report) (int, error) {
	docs, err := m.load(ctx, rep)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if stringField(d.meta, "title") != "" {
			continue
		}
		content, err := m.readContent(d.base)
		if err != nil {
			m.fail(rep, d.file(), err)
			continue
		}
		title := markdown.ExtractTitle(content)
		if title == "" {
			title = markdown.UntitledTitle
		}
		// metadata first, so a failed content write never loses the title
		d.meta["title"] = title
		d.meta["updatedAt"] = m.now().Format(time.RFC3339Nano)
		if err := m.writeMeta(d); err != nil {
			m.fail(rep, d.file(), err)
			continue
		}
		if stripped := markdown.StripTitle(content); stripped != content {
			if err := m.write(d.base+contentSuffix, []byte(stripped)); err != nil {
				m.fail(rep, d.file(), err)
				continue
			}
		}
		m.logger.Info("backfilled title", "file", d.file(), "title", title)
		n++
	}
	return n, nil
}

func (m *Migrator) backfillSlugs(ctx context.Context, rep *Report) (int, error) {
	docs, err := m.load(ctx, rep)
	if err != nil {
		return 0, err
	}
	used := make(map[string]bool, len(docs))
	for _, d := range docs {
		if s := stringField(d.meta, "slug"); s != "" {
			used[s] = true
		}
	}
	n := 0
	for _, d := range docs {
		if stringField(d.meta, "slug") != "" {
			continue
		}
		base := filename.Slug(stringField(d.meta, "title"))
		if base == "" {
			base = "todo-" + shortID(stringField(d.meta, "id"))
		}
		slug := base
		for i := 2; used[slug]; i++ {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		d.meta["slug"] = slug
		if err := m.writeMeta(d); err != nil {
			m.fail(rep, d.file(), err)
			continue
		}
		used[slug] = true
		m.logger.Info("backfilled slug", "file", d.file(), "slug", slug)
		n++
	}
	return n, nil
}

func (m *Migrator) fixDuplicateSlugs(ctx context.Context, rep *Report) (int, error) {
	docs, err := m.load(ctx, rep)
	if err != nil {
		return 0, err
	}
	used := make(map[string]bool, len(docs))
	groups := make(map[string][]doc)
	var order []string
	for _, d := range docs {
		s := stringField(d.meta, "slug")
		if s == "" {
			continue
		}
		used[s] = true
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], d)
	}

	n := 0
	for _, slug := range order {
		dups := groups[slug]
		for i := 1; i < len(dups); i++ {
			next := i + 1
			candidate := fmt.Sprintf("%s-%d", slug, next)
			for used[candidate] {
				next++
				candidate = fmt.Sprintf("%s-%d", slug, next)
			}
			d := dups[i]
			d.meta["slug"] = candidate
			if err := m.writeMeta(d); err != nil {
				m.fail(rep, d.file(), err)
				continue
			}
			used[candidate] = true
			m.logger.Info("fixed duplicate slug", "file", d.file(), "slug", candidate)
			n++
		}
	}
	return n, nil
}

type doc struct {
	base string
	meta map[string]any
}

func (d doc) file() string { return d.base + metaSuffix }

// load parses every metadata file in directory order. Unparseable files are
// reported and skipped.
func (m *Migrator) load(ctx context.Context, rep *Report) ([]doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		return nil, fmt.Errorf("read todos dir: %w", err)
	}
	var docs []doc
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(m.dir, name))
		if err != nil {
			m.fail(rep, name, err)
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal(data, &meta); err != nil {
			m.fail(rep, name, err)
			continue
		}
		if meta == nil {
			m.fail(rep, name, errors.New("metadata is not an object"))
			continue
		}
		docs = append(docs, doc{base: strings.TrimSuffix(name, metaSuffix), meta: meta})
	}
	return docs, nil
}

func (m *Migrator) readContent(base string) (string, error) {
	data, err := afero.ReadFile(m.fs, filepath.Join(m.dir, base+contentSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func (m *Migrator) writeMeta(d doc) error {
	data, err := json.MarshalIndent(d.meta, "", "  ")
	if err != nil {
		return err
	}
	return m.write(d.file(), data)
}

func (m *Migrator) write(name string, data []byte) error {
	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return m.fs.Rename(tmp, path)
}

func (m *Migrator) fail(rep *Report, file string, err error) {
	m.logger.Warn("migration skipped file", "file", file, "err", err)
	for _, fe := range rep.Errors {
		if fe.File == file {
			return
		}
	}
	rep.Errors = append(rep.Errors, FileError{File: file, Err: err.Error()})
}

func stringField(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return strings.TrimSpace(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
