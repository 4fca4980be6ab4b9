package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
)

// Watch re-loads the config whenever the file changes on disk and calls
// onChange with the fresh config. A load/validation failure keeps the
// previous config and is reported at boot category; watching continues.
//
// The returned stop function releases the watcher. Watch returns an error
// only if the watcher itself cannot be created.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logging.Boot("config reload failed, keeping previous: %v", err)
					continue
				}
				logging.BootDebug("config reloaded from %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Boot("config watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
