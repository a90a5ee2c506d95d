package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the .env file and applies runtime-safe changes without a
// restart. Only the log level and format are reloadable; credentials,
// endpoints and product ids require a restart.
type Watcher struct {
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time

	mu         sync.Mutex
	lastLevel  string
	lastFormat string
	onReload   func(logLevel, logFormat string)
}

// NewWatcher creates a watcher for the given .env path. onReload is called
// with the new log level and format whenever either changes.
func NewWatcher(envPath string, onReload func(logLevel, logFormat string)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		envPath:  envPath,
		watcher:  watcher,
		stopChan: make(chan struct{}),
		onReload: onReload,
	}
	if stat, err := os.Stat(envPath); err == nil {
		w.lastModTime = stat.ModTime()
	}
	return w, nil
}

// Start begins watching the .env file's directory, falling back to polling
// when the directory cannot be watched.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.envPath)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("env_path", w.envPath).Msg("Started watching config file for changes")
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.envPath) && event.Name != w.envPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce - wait a bit for the write to complete
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.envPath)
			if err != nil {
				continue
			}
			if stat.ModTime().After(w.lastModTime) {
				w.lastModTime = stat.ModTime()
				log.Info().Msg("Detected .env file change via polling")
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

// reload re-reads the .env file and applies the reloadable settings. A
// missing file is not an error.
func (w *Watcher) reload() {
	envMap, err := godotenv.Read(w.envPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", w.envPath).Msg("Failed to read .env file")
		}
		return
	}

	level := envMap["SYNC_LOG_LEVEL"]
	format := envMap["SYNC_LOG_FORMAT"]
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "auto"
	}

	w.mu.Lock()
	changed := level != w.lastLevel || format != w.lastFormat
	w.lastLevel = level
	w.lastFormat = format
	onReload := w.onReload
	w.mu.Unlock()

	if !changed || onReload == nil {
		return
	}
	log.Info().Str("log_level", level).Str("log_format", format).Msg("Applying reloaded log settings")
	onReload(level, format)
}
