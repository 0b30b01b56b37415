package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sparkeye/internal/logging"
)

// DirSource watches a directory and emits every image file dropped into
// it. Files already present at Open are replayed first, sorted by name,
// so a directory of stills doubles as a replay source.
type DirSource struct {
	dir    string
	settle time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	out     chan Frame
	watcher *fsnotify.Watcher
}

var _ Source = (*DirSource)(nil)

func NewDirSource(dir string) *DirSource {
	return &DirSource{
		dir:    dir,
		settle: 200 * time.Millisecond,
		doneCh: make(chan struct{}),
		out:    make(chan Frame, 4),
	}
}

func (d *DirSource) Name() string { return "dir:" + d.dir }

func (d *DirSource) Frames() <-chan Frame { return d.out }

func (d *DirSource) Open(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", d.dir, err)
	}

	existing, err := d.listExisting()
	if err != nil {
		watcher.Close()
		return err
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		watcher.Close()
		return nil
	}
	d.running = true
	d.watcher = watcher
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	logging.Capture("watching %s (%d existing files)", d.dir, len(existing))
	go d.run(runCtx, existing)
	return nil
}

func (d *DirSource) Close() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	<-d.doneCh
	return nil
}

func (d *DirSource) listExisting() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(d.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *DirSource) run(ctx context.Context, existing []string) {
	defer close(d.doneCh)
	defer close(d.out)
	defer d.watcher.Close()

	var seq uint64
	for _, path := range existing {
		if !d.emit(ctx, path, &seq) {
			return
		}
	}

	// Settle window batches the create/write bursts a saving camera app
	// produces per file.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !imageFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			logging.CaptureError("watch error on %s: %v", d.dir, err)

		case <-ticker.C:
			now := time.Now()
			var settled []string
			for path, at := range pending {
				if now.Sub(at) >= d.settle {
					settled = append(settled, path)
					delete(pending, path)
				}
			}
			sort.Strings(settled)
			for _, path := range settled {
				if !d.emit(ctx, path, &seq) {
					return
				}
			}
		}
	}
}

// emit decodes and delivers one file. Unreadable or undecodable files are
// logged and skipped. Returns false when the context ended.
func (d *DirSource) emit(ctx context.Context, path string, seq *uint64) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.CaptureWarn("skipping %s: %v", path, err)
		return ctx.Err() == nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logging.CaptureWarn("skipping undecodable %s: %v", path, err)
		return ctx.Err() == nil
	}

	*seq++
	select {
	case d.out <- Frame{Image: img, Seq: *seq, At: time.Now()}:
		logging.CaptureDebug("emitted %s as frame %d", filepath.Base(path), *seq)
		return true
	case <-ctx.Done():
		return false
	}
}

func imageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
