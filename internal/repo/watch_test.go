package repo

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "mdtodo/internal/domain"
)

func TestFileTodoRepo_WatchSeesExternalEdits(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileTodoRepo(afero.NewOsFs(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, func() { changes.Add(1) }) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)

	td, err := r.Create(ctx, dom.Todo{Title: "watched"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return changes.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	got, err := r.GetByID(ctx, td.ID)
	require.NoError(t, err)
	assert.Equal(t, "watched", got.Title)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestIsRecordFile(t *testing.T) {
	assert.True(t, isRecordFile("/x/a.md"))
	assert.True(t, isRecordFile("/x/a.meta.json"))
	assert.False(t, isRecordFile("/x/a.meta.json.tmp"))
	assert.False(t, isRecordFile("/x/notes.txt"))
}
