package cardsync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
)

const (
	// watcherDirPerm is the permission mode for the asset directory when
	// ensuring it exists before starting the watcher.
	watcherDirPerm = fs.FileMode(0o755)

	// watcherDebounceInterval is how often the watcher checks for settled
	// writes, so an image saved in several chunks marks its slot once.
	watcherDebounceInterval = 500 * time.Millisecond

	// watcherSettleTime is how long a file must be quiet before it is
	// handled.
	watcherSettleTime = 300 * time.Millisecond
)

// submitter is the subset of PushQueue the watcher needs.
type submitter interface {
	Submit()
}

// AssetWatcher watches the asset directory for card images. A file named
// <localId>_<slot>.<ext> (slot one of profile, logo, cover) becomes the
// pending local image of that slot, and a push is queued.
type AssetWatcher struct {
	dir    string
	store  CardStore
	queue  submitter
	logger *slog.Logger
	now    func() time.Time
}

// NewAssetWatcher creates a watcher for dir.
func NewAssetWatcher(dir string, store CardStore, queue submitter, logger *slog.Logger) *AssetWatcher {
	return &AssetWatcher{
		dir:    dir,
		store:  store,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// ParseAssetName splits an asset file name into the card's local id and
// the image slot.
func ParseAssetName(name string) (string, models.ImageSlot, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return "", "", false
	}

	base = strings.TrimSuffix(base, filepath.Ext(base))

	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return "", "", false
	}

	slot, ok := models.ParseImageSlot(base[i+1:])
	if !ok {
		return "", "", false
	}

	return base[:i], slot, true
}

// Watch blocks until ctx is cancelled.
func (w *AssetWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, watcherDirPerm); err != nil {
		return fmt.Errorf("creating asset dir: %w", err)
	}

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching asset dir: %w", err)
	}

	w.logger.Info("asset watcher started", slog.String("dir", w.dir))

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(watcherDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if _, _, ok := ParseAssetName(event.Name); !ok {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) < watcherSettleTime {
					continue
				}

				delete(pending, path)
				w.handleWrite(path)
			}
		}
	}
}

// handleWrite marks the slot named by path as a pending local image.
func (w *AssetWatcher) handleWrite(path string) {
	localID, slot, ok := ParseAssetName(path)
	if !ok {
		return
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	card, err := w.store.FindByLocalID(localID)
	if err != nil {
		w.logger.Warn("looking up card for image", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if card == nil {
		w.logger.Debug("image for unknown card ignored", slog.String("path", path))
		return
	}

	next := card.Clone()
	ref := next.Image(slot)

	if ref.LocalFile == path && ref.Path != "" && !ref.Dirty && ref.Checksum != "" {
		if content, err := os.ReadFile(path); err == nil && contentHash(content) == ref.Checksum {
			w.logger.Debug("image content unchanged", slog.String("path", path))
			return
		}
	}

	ref.LocalFile = path
	ref.Dirty = true
	next.SetImage(slot, ref)
	next.Touch(w.now())

	if _, err := w.store.Upsert(next); err != nil {
		w.logger.Warn("marking image pending", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	w.logger.Info("card image changed",
		slog.String("local_id", localID),
		slog.String("slot", string(slot)),
	)

	w.queue.Submit()
}
