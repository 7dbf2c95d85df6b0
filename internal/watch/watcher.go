// Package watch collects meter images as they appear in the image tree.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/meterelf/meterelf-store/internal/collect"
)

// DefaultDebounce is how long the watcher waits for quiet before emitting
// a batch. Cameras write images in several chunks.
const DefaultDebounce = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	Extensions []string
	Debounce   time.Duration
	Logger     *log.Logger
}

// Watcher watches <root>, its month directories and their day directories
// and emits batches of new or changed image paths.
type Watcher struct {
	root       string
	extensions []string

	watcher *fsnotify.Watcher
	logger  *log.Logger

	debounceWindow time.Duration
	batches        chan []string
	errors         chan error

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	timer   *time.Timer

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher creates a watcher on root and the existing month and day
// directories below it.
func NewWatcher(root string, opts Options) (*Watcher, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("images root is required")
	}
	root = filepath.Clean(root)
	if len(opts.Extensions) == 0 {
		opts.Extensions = collect.DefaultExtensions
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:           root,
		extensions:     opts.Extensions,
		watcher:        fsw,
		logger:         logger,
		debounceWindow: opts.Debounce,
		batches:        make(chan []string, 16),
		errors:         make(chan error, 16),
		pending:        make(map[string]fsnotify.Op),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	months, err := collect.ListMonthDirs(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, month := range months {
		if err := w.addMonth(filepath.Join(root, month), false); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addMonth watches a month directory and its day directories. When scan is
// set, images already present in new day directories are recorded.
func (w *Watcher) addMonth(monthPath string, scan bool) error {
	if err := w.watcher.Add(monthPath); err != nil {
		return fmt.Errorf("watch %s: %w", monthPath, err)
	}
	items, err := os.ReadDir(monthPath)
	if err != nil {
		return fmt.Errorf("listing %s: %w", monthPath, err)
	}
	for _, item := range items {
		if item.IsDir() && collect.IsDayDir(item.Name()) {
			if err := w.addDay(filepath.Join(monthPath, item.Name()), scan); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) addDay(dayPath string, scan bool) error {
	if err := w.watcher.Add(dayPath); err != nil {
		return fmt.Errorf("watch %s: %w", dayPath, err)
	}
	if !scan {
		return nil
	}
	items, err := os.ReadDir(dayPath)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dayPath, err)
	}
	for _, item := range items {
		if !item.IsDir() && collect.HasImageExtension(item.Name(), w.extensions) {
			w.record(filepath.Join(dayPath, item.Name()), fsnotify.Create)
		}
	}
	return nil
}

// Batches returns a channel of debounced image path batches. It is closed
// on Stop().
func (w *Watcher) Batches() <-chan []string {
	if w == nil {
		ch := make(chan []string)
		close(ch)
		return ch
	}
	return w.batches
}

// Errors returns a channel of watcher errors. It is closed on Stop().
func (w *Watcher) Errors() <-chan error {
	if w == nil {
		ch := make(chan error)
		close(ch)
		return ch
	}
	return w.errors
}

// Start starts the watcher event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	w.startOnce.Do(func() {
		go w.loop(ctx)
	})
	return nil
}

// Stop stops the watcher and closes its channels.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		<-w.doneCh
	})
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.batches)
	defer close(w.errors)

	for {
		var timerC <-chan time.Time
		w.mu.Lock()
		if w.timer != nil {
			timerC = w.timer.C
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			w.flush()
			return
		case <-w.stopCh:
			w.flush()
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.flush()
				return
			}
			w.sendError(err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				w.flush()
				return
			}
			w.handle(ev)
		case <-timerC:
			w.flush()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	parent := filepath.Dir(path)
	name := filepath.Base(path)

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			var err error
			switch {
			case parent == w.root && collect.IsMonthDir(name):
				err = w.addMonth(path, true)
			case filepath.Dir(parent) == w.root && collect.IsMonthDir(filepath.Base(parent)) && collect.IsDayDir(name):
				err = w.addDay(path, true)
			}
			if err != nil {
				w.sendError(err)
			}
			return
		}
	}

	if w.isImage(path) && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		w.record(path, ev.Op)
	}
}

// isImage reports whether path is an image file inside a day directory.
func (w *Watcher) isImage(path string) bool {
	if !collect.HasImageExtension(path, w.extensions) {
		return false
	}
	day := filepath.Dir(path)
	month := filepath.Dir(day)
	return filepath.Dir(month) == w.root &&
		collect.IsDayDir(filepath.Base(day)) &&
		collect.IsMonthDir(filepath.Base(month))
}

func (w *Watcher) record(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] |= op

	if w.timer == nil {
		w.timer = time.NewTimer(w.debounceWindow)
		return
	}

	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.debounceWindow)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)

	if w.timer != nil {
		if !w.timer.Stop() {
			select {
			case <-w.timer.C:
			default:
			}
		}
		w.timer = nil
	}
	w.mu.Unlock()

	var paths []string
	for path := range pending {
		// Images removed again before the window closed are skipped.
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.batches <- paths
}

func (w *Watcher) sendError(err error) {
	if err == nil {
		return
	}
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher error dropped", "error", err)
	}
}
