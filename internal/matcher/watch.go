package matcher

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher wakes the engine's poll loop as soon as a file shows up or
// changes under a watched inputs directory, instead of waiting out the
// rest of PollIntervalSeconds. It never blocks a tick: Events only ever
// gains a reader in Engine.sleep, and a full channel just means the wake
// was already pending.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan struct{}
	logger *zap.Logger
}

// NewWatcher starts watching dirs. A directory that doesn't exist yet
// (nothing has been dropped into the workspace) is skipped rather than
// failing the whole watcher — ScanInputsAndBindEvidence already tolerates
// missing directories the same way.
func NewWatcher(dirs []string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, Events: make(chan struct{}, 1), logger: logger}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			logger.Debug("matcher watcher: skipping unwatchable dir", zap.String("dir", d), zap.Error(err))
			continue
		}
	}
	go w.pump()
	return w, nil
}

func (w *Watcher) pump() {
	for {
		select {
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			select {
			case w.Events <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("matcher watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
