// Package watcher reports changes to a set of files, batching bursts of
// events such as an editor's save into one notification.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dval/logger"
	"dval/utils"
)

const DefaultQuietPeriod = 50 * time.Millisecond

type Watcher struct {
	mutex sync.Mutex

	watcher     *fsnotify.Watcher
	directories map[string]struct{}
	files       map[string]struct{}
	stop        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once

	// EventsReady receives once per batch; take the batch with GetEventsBatch
	EventsReady chan struct{}

	events         *Events
	notifyListener *utils.Debouncer
	log            *logger.Entry
}

func NewWatcher(quietPeriod time.Duration) (*Watcher, error) {
	fswatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}

	w := &Watcher{
		watcher:     fswatcher,
		directories: make(map[string]struct{}),
		files:       make(map[string]struct{}),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		EventsReady: make(chan struct{}),
		log:         logger.GetLogger().WithComponent("watcher"),
	}

	w.notifyListener = utils.NewDebouncer(func() {
		select {
		case w.EventsReady <- struct{}{}:
		case <-w.stop:
		}
	}, quietPeriod)

	go w.listenForChangeEvents()

	return w, nil
}

// Watch starts reporting events for the file at path. The containing
// directory is what gets watched, so files replaced by rename are still seen.
func (w *Watcher) Watch(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	folder := filepath.Dir(path)

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.files[path] = struct{}{}

	if _, found := w.directories[folder]; found {
		return nil
	}
	if err := w.watcher.Add(folder); err != nil {
		delete(w.files, path)
		return err
	}
	w.directories[folder] = struct{}{}

	return nil
}

func (w *Watcher) watching(path string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_, found := w.files[path]
	return found
}

func (w *Watcher) listenForChangeEvents() {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			path, err := filepath.Abs(event.Name)
			if err != nil || !w.watching(path) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				w.handleChangeEvent(path, CREATED)
			case event.Op&fsnotify.Write == fsnotify.Write:
				w.handleChangeEvent(path, MODIFIED)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.recordEventInBatch(path, DELETED, nil)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("file system watcher error")
		}
	}
}

func (w *Watcher) handleChangeEvent(path string, eventType EventType) {
	if info, err := os.Stat(path); err != nil {
		w.log.WithError(err).WithField("path", path).Warn("unable to stat changed file")
	} else if !info.IsDir() {
		w.recordEventInBatch(path, eventType, info)
	}
}

func (w *Watcher) recordEventInBatch(path string, event EventType, info os.FileInfo) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.events == nil {
		w.events = newEventBatch()
	}
	w.events.addEvent(path, event, info)

	w.notifyListener.Trigger()
}

// GetEventsBatch returns everything recorded since the previous call, or nil
func (w *Watcher) GetEventsBatch() *Events {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	events := w.events
	w.events = nil

	return events
}

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.notifyListener.Stop()
		close(w.stop)
		<-w.stopped
	})
}
