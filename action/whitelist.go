package action

import (
	"context"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/solenne/vesper/errors"
)

// Whitelist is the separately maintained table of system commands the
// command action may run. The file maps a short name to a command line:
//
//	commands:
//	  disk_usage: df -h
//	  uptime: uptime
//
// Only named entries are ever executed; arbitrary command strings from job
// parameters are never run.
type Whitelist struct {
	path     string
	mu       sync.RWMutex
	commands map[string]string
	log      *zap.SugaredLogger
}

type whitelistFile struct {
	Commands map[string]string `yaml:"commands"`
}

// LoadWhitelist reads the whitelist file
func LoadWhitelist(path string, log *zap.SugaredLogger) (*Whitelist, error) {
	w := &Whitelist{
		path:     path,
		commands: make(map[string]string),
		log:      log,
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// EmptyWhitelist returns a whitelist with no entries and no backing file.
// Every lookup misses, so the command action refuses everything.
func EmptyWhitelist(log *zap.SugaredLogger) *Whitelist {
	return &Whitelist{
		commands: make(map[string]string),
		log:      log,
	}
}

// Reload re-reads the whitelist file, replacing the command table atomically
func (w *Whitelist) Reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read command whitelist %s", w.path)
	}

	var file whitelistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrapf(err, "failed to parse command whitelist %s", w.path)
	}

	w.mu.Lock()
	w.commands = file.Commands
	if w.commands == nil {
		w.commands = make(map[string]string)
	}
	count := len(w.commands)
	w.mu.Unlock()

	w.log.Infow("Command whitelist loaded", "path", w.path, "commands", count)
	return nil
}

// Lookup returns the command line for a whitelisted name
func (w *Whitelist) Lookup(name string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cmd, ok := w.commands[name]
	return cmd, ok
}

// Names returns the whitelisted command names
func (w *Whitelist) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.commands))
	for name := range w.commands {
		names = append(names, name)
	}
	return names
}

// Watch reloads the whitelist whenever the file changes, so operators can
// add commands without restarting the daemon. Blocks until ctx is done.
func (w *Whitelist) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create whitelist watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return errors.Wrapf(err, "failed to watch %s", w.path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				// Keep the previous table on a bad edit
				w.log.Warnw("Whitelist reload failed, keeping previous table", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Whitelist watcher error", "error", err)
		}
	}
}
