// Package watch ingests collector files dropped into per-case folders.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"gorm.io/gorm"
)

// DefaultDebounce is how long a file must stay quiet before it is picked up
const DefaultDebounce = 500 * time.Millisecond

// Submitter queues an ingestion run
type Submitter interface {
	Submit(ctx context.Context, in services.RunInput) (*models.IngestionRun, error)
}

// Watcher watches a folder whose numeric sub-folders are case ids
type Watcher struct {
	DB        *gorm.DB
	Dir       string
	UploadDir string
	Submitter Submitter
	Debounce  time.Duration

	log    *slog.Logger
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// New returns a Watcher for dir that moves files under uploadDir
func New(db *gorm.DB, dir, uploadDir string, submitter Submitter) *Watcher {
	return &Watcher{
		DB:        db,
		Dir:       dir,
		UploadDir: uploadDir,
		Submitter: submitter,
		Debounce:  DefaultDebounce,
		log:       logging.New("watch"),
		timers:    make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done. Files already present are picked up first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create watch folder: %w", err)
	}
	w.mu.Lock()
	w.stopped = false
	w.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return fmt.Errorf("failed to read watch folder: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if _, ok := caseDir(e.Name()); ok {
				w.addCaseDir(ctx, fw, filepath.Join(w.Dir, e.Name()))
			}
		}
	}
	w.log.Info("watching", "dir", w.Dir)

	defer w.stopTimers()
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)

		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	parent := filepath.Dir(event.Name)

	if filepath.Clean(parent) == filepath.Clean(w.Dir) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, ok := caseDir(info.Name()); ok {
				w.addCaseDir(ctx, fw, event.Name)
			}
		}
		return
	}
	if _, ok := caseDir(filepath.Base(parent)); !ok || !Eligible(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// addCaseDir watches a case folder and queues the files already in it
func (w *Watcher) addCaseDir(ctx context.Context, fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil {
		w.log.Warn("failed to watch case folder", "dir", dir, "error", err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && Eligible(e.Name()) {
			w.schedule(ctx, filepath.Join(dir, e.Name()))
		}
	}
}

// schedule restarts the quiet period of a file
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		// a timer that fired as the watcher stopped must not join the wait group
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.Process(ctx, path); err != nil {
			w.log.Error("failed to ingest dropped file", "path", path, "error", err)
		}
	})
}

// stopTimers cancels pending files and waits for the ones already being processed
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Process moves one dropped file into the case's upload folder and submits it
func (w *Watcher) Process(ctx context.Context, path string) (*models.IngestionRun, error) {
	id, ok := caseDir(filepath.Base(filepath.Dir(path)))
	if !ok {
		return nil, fmt.Errorf("%s is not inside a case folder", path)
	}
	if _, err := os.Stat(path); err != nil {
		// moved away before it settled
		return nil, nil
	}
	c, err := services.GetCase(w.DB, id)
	if err != nil {
		return nil, err
	}

	runUUID := uuid.NewString()
	retained, size, err := jobs.MoveUpload(path, w.UploadDir, c.Namespace, runUUID)
	if err != nil {
		return nil, err
	}
	run, err := w.Submitter.Submit(ctx, services.RunInput{
		RunUUID:  runUUID,
		CaseID:   c.ID,
		Filename: filepath.Base(path),
		FilePath: retained,
		FileSize: size,
	})
	if err != nil {
		return nil, err
	}
	w.log.Info("dropped file submitted", "case_id", c.ID, "file", filepath.Base(path), "run_uuid", run.RunUUID)
	return run, nil
}

// Eligible reports whether a dropped file should be ingested: a visible .json
// file that is not an editor or download temporary.
func Eligible(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") || strings.HasSuffix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}

func caseDir(name string) (uint64, bool) {
	id, err := strconv.ParseUint(name, 10, 64)
	return id, err == nil && id > 0
}
