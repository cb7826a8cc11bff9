package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	dom "mdtodo/internal/domain"
	"mdtodo/internal/repo"
)

func seedRepo(t *testing.T, fsys afero.Fs) []dom.Todo {
	t.Helper()
	r, err := repo.NewFileTodoRepo(fsys, "/todos")
	require.NoError(t, err)
	ctx := context.Background()
	var out []dom.Todo
	for _, td := range []dom.Todo{
		{Title: "Buy milk", Section: dom.SectionToday, Priority: dom.PriorityHigh, Tags: []string{"home"}, Content: "two liters"},
		{Title: "Plan trip", Section: dom.SectionWeek, Priority: dom.PriorityMedium, DueDate: "2030-01-01"},
	} {
		created, err := r.Create(ctx, td)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func run(t *testing.T, fsys afero.Fs, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(fsys)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--dir", "/todos"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestList_Text(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRepo(t, fsys)

	out, err := run(t, fsys, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Today")
	assert.Contains(t, out, "This week")
	assert.Contains(t, out, "[ ] Buy milk")
	assert.Contains(t, out, "#home")
	assert.Contains(t, out, "due 2030-01-01")
	assert.Less(t, strings.Index(out, "Buy milk"), strings.Index(out, "Plan trip"))
}

func TestList_JSONAndYAML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seeded := seedRepo(t, fsys)

	out, err := run(t, fsys, "list", "--format", "json", "--section", "week")
	require.NoError(t, err)
	var items []listItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, seeded[1].ID, items[0].ID)
	assert.Equal(t, "2030-01-01", items[0].DueDate)

	out, err = run(t, fsys, "list", "--format", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Buy milk", items[0].Title)
	assert.Equal(t, []string{"home"}, items[0].Tags)

	_, err = run(t, fsys, "list", "--format", "xml")
	assert.Error(t, err)
	_, err = run(t, fsys, "list", "--section", "someday")
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seeded := seedRepo(t, fsys)

	out, err := run(t, fsys, "show", seeded[0].ID, "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "# Buy milk")
	assert.Contains(t, out, "two liters")
	assert.Contains(t, out, "**priority:** high")

	_, err = run(t, fsys, "show", "missing")
	assert.Error(t, err)
}

func TestMigrateCleanBackupRestore(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedRepo(t, fsys)

	out, err := run(t, fsys, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "duplicates fixed:  0")

	out, err = run(t, fsys, "backup", "/backups/b.tar.gz")
	require.NoError(t, err)
	assert.Contains(t, out, "(4 files)")

	_, err = run(t, fsys, "clean")
	assert.Error(t, err)

	out, err = run(t, fsys, "clean", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 4 files")

	out, err = run(t, fsys, "list", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, err = run(t, fsys, "restore", "/backups/b.tar.gz")
	require.NoError(t, err)
	assert.Contains(t, out, "restored 4 files")

	out, err = run(t, fsys, "list", "--format", "json")
	require.NoError(t, err)
	var items []listItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 2)
}
