package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// DefaultPalette is offered when no custom emoji list is configured.
var DefaultPalette = []string{
	"👍", "❤️", "😂", "😮", "😢", "😡",
	"🎉", "🤔", "👀", "🔥", "✨", "👎",
}

const reloadDebounce = 100 * time.Millisecond

type emojiFile struct {
	CustomEmojis []string `yaml:"customEmojis"`
}

// EmojiSet is the reaction picker palette, optionally backed by a YAML file
// that is reloaded when it changes on disk.
type EmojiSet struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	emojis    []string
	listeners []func([]string)
}

// NewEmojiSet loads path, falling back to DefaultPalette when path is empty,
// missing or invalid.
func NewEmojiSet(path string, logger *slog.Logger) *EmojiSet {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EmojiSet{
		path:   path,
		logger: logger.With("component", "emoji"),
		emojis: slices.Clone(DefaultPalette),
	}
	if err := s.Reload(); err != nil && !errors.Is(err, ErrNoEmojiFile) {
		s.logger.Warn("using default emoji palette", "path", path, "error", err)
	}
	return s
}

// Emojis returns the current palette.
func (s *EmojiSet) Emojis() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.emojis)
}

// OnChange registers fn to receive the palette after every reload.
func (s *EmojiSet) OnChange(fn func([]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload rereads the file. On any error the default palette is used.
func (s *EmojiSet) Reload() error {
	emojis, err := s.read()
	if err != nil {
		emojis = slices.Clone(DefaultPalette)
	}

	s.mu.Lock()
	changed := !slices.Equal(s.emojis, emojis)
	s.emojis = emojis
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(slices.Clone(emojis))
		}
	}
	return err
}

func (s *EmojiSet) read() ([]string, error) {
	if s.path == "" {
		return nil, ErrNoEmojiFile
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var f emojiFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	emojis := lo.Uniq(lo.Compact(f.CustomEmojis))
	if len(emojis) == 0 {
		return nil, ErrEmptyPalette
	}
	return emojis, nil
}

// Save writes a custom palette to the backing file. The watcher, if running,
// picks the change up like any other edit.
func (s *EmojiSet) Save(emojis []string) error {
	emojis = lo.Uniq(lo.Compact(emojis))
	if len(emojis) == 0 {
		return ErrEmptyPalette
	}
	if s.path == "" {
		return ErrNoEmojiFile
	}

	data, err := yaml.Marshal(emojiFile{CustomEmojis: emojis})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return s.Reload()
}

// Watch reloads the palette whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *EmojiSet) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn("emoji file reload failed", "path", s.path, "error", err)
			} else {
				s.logger.Info("emoji palette reloaded", "count", len(s.Emojis()))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("emoji watcher error", "error", err)
		}
	}
}
