package config

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ashosive/agent-runtime/internal/logging"
)

// Watcher reloads the configuration when one of its files changes.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	onChange  func(*Config)
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.Mutex
	log       zerolog.Logger
}

// Watch watches the directories holding the config files Load reads for
// directory and calls onChange with the freshly loaded configuration after
// each change. Reloads that fail are logged and skipped.
func Watch(directory string, onChange func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := map[string]bool{}
	for _, path := range Candidates(directory) {
		dirs[filepath.Dir(path)] = true
	}
	added := 0
	for dir := range dirs {
		// Missing directories are skipped; there is nothing to reload from.
		if err := w.Add(dir); err == nil {
			added++
		}
	}

	cw := &Watcher{
		watcher:   w,
		directory: directory,
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		log:       logging.Component("config"),
	}
	cw.log.Debug().Int("dirs", added).Msg("config watcher initialized")

	cw.mu.Lock()
	cw.started = true
	cw.mu.Unlock()
	go cw.run()
	return cw, nil
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, FileBase+".") {
		return false
	}
	ext := filepath.Ext(base)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isConfigFile(ev.Name) {
				continue
			}
			cfg, err := Load(w.directory)
			if err != nil {
				w.log.Warn().Err(err).Str("file", ev.Name).Msg("config reload failed")
				continue
			}
			w.log.Info().Str("file", ev.Name).Msg("config reloaded")
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
