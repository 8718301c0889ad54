package reaction

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

func TestEmojiSet_DefaultPalette(t *testing.T) {
	s := NewEmojiSet("", nil)
	assert.Equal(t, DefaultPalette, s.Emojis())
	assert.Len(t, s.Emojis(), 12)
	assert.ErrorIs(t, s.Save([]string{"🙂"}), ErrNoEmojiFile)
}

func TestEmojiSet_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emojis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("customEmojis:\n  - \"🙂\"\n  - \"🚀\"\n  - \"🙂\"\n  - \"\"\n"), 0o600))

	s := NewEmojiSet(path, nil)
	assert.Equal(t, []string{"🙂", "🚀"}, s.Emojis())
}

func TestEmojiSet_InvalidFallsBack(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"missing": filepath.Join(dir, "nope.yaml"),
		"broken":  writeFile(t, dir, "broken.yaml", "customEmojis: [unterminated"),
		"empty":   writeFile(t, dir, "empty.yaml", "customEmojis: []\n"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, DefaultPalette, NewEmojiSet(path, nil).Emojis())
		})
	}
}

func TestEmojiSet_SaveNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emojis.yaml")
	s := NewEmojiSet(path, nil)

	var got []string
	s.OnChange(func(e []string) { got = e })

	require.NoError(t, s.Save([]string{"🚀", "🚀", "🐹"}))
	assert.Equal(t, []string{"🚀", "🐹"}, got)
	assert.Equal(t, got, NewEmojiSet(path, nil).Emojis(), "saved palette survives a reload")

	assert.ErrorIs(t, s.Save(nil), ErrEmptyPalette)
}

func TestEmojiSet_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "emojis.yaml", "customEmojis: [\"🙂\"]\n")
	s := NewEmojiSet(path, nil)

	var mu sync.Mutex
	var got []string
	s.OnChange(func(e []string) {
		mu.Lock()
		defer mu.Unlock()
		got = e
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the directory are ignored
	writeFile(t, dir, "other.yaml", "customEmojis: [\"❌\"]\n")
	writeFile(t, dir, "emojis.yaml", "customEmojis: [\"🚀\", \"🐹\"]\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[0] == "🚀"
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
