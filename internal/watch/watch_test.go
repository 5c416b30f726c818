package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestMatch(t *testing.T) {
	w := &Watcher{Pattern: DefaultPattern}
	assert.True(t, w.Match("chat.png"))
	assert.True(t, w.Match("Chat.JPG"))
	assert.True(t, w.Match("scan.tiff"))
	assert.False(t, w.Match("notes.txt"))
	assert.False(t, w.Match("chat.png.part"))
}

func TestRun_InvalidPattern(t *testing.T) {
	w := &Watcher{Dir: t.TempDir(), Pattern: "[", Handle: (&recorder{}).handle}
	assert.Error(t, w.Run(context.Background()))
}

func TestRun_HandlesNewImagesOnce(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := &Watcher{Dir: dir, Settle: 100 * time.Millisecond, Handle: rec.handle}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "group.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"group.png"}, rec.snapshot())
}

func TestRun_Existing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.jpg"), []byte("x"), 0o644))
	rec := &recorder{}
	w := &Watcher{Dir: dir, Settle: 20 * time.Millisecond, Existing: true, Handle: rec.handle}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"old.jpg"}, rec.snapshot())
}
