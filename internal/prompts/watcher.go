package prompts

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OverrideWatcher invalidates a Loader's template cache when files in
// its override directories change, so long-lived processes (watch mode,
// the web server) pick up edited prompts without a restart.
type OverrideWatcher struct {
	watcher *fsnotify.Watcher
	loader  *Loader

	debounce time.Duration
	timer    *time.Timer
	mu       sync.Mutex

	done chan struct{}
}

// NewOverrideWatcher starts watching the loader's override directories.
// Directories that do not exist yet are skipped.
func NewOverrideWatcher(loader *Loader) (*OverrideWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ow := &OverrideWatcher{
		watcher:  watcher,
		loader:   loader,
		debounce: 500 * time.Millisecond, // Debounce rapid editor writes
		done:     make(chan struct{}),
	}

	for _, dir := range loader.overrideDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("prompts: cannot watch %s: %v", dir, err)
		}
	}

	go ow.run()
	return ow, nil
}

func (ow *OverrideWatcher) run() {
	for {
		select {
		case event, ok := <-ow.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				ow.scheduleInvalidate()
			}
		case err, ok := <-ow.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("prompts: watch error: %v", err)
		case <-ow.done:
			return
		}
	}
}

func (ow *OverrideWatcher) scheduleInvalidate() {
	ow.mu.Lock()
	defer ow.mu.Unlock()

	if ow.timer != nil {
		ow.timer.Stop()
	}
	ow.timer = time.AfterFunc(ow.debounce, func() {
		ow.loader.ClearCache()
	})
}

// Close stops the watcher
func (ow *OverrideWatcher) Close() error {
	close(ow.done)
	ow.mu.Lock()
	if ow.timer != nil {
		ow.timer.Stop()
	}
	ow.mu.Unlock()
	return ow.watcher.Close()
}
