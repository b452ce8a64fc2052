package cardsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Uploader transfers one image and returns the server path for it.
// *api.Client implements it.
type Uploader interface {
	UploadImage(ctx context.Context, remoteID string, slot models.ImageSlot, filename string, content []byte) (string, error)
}

// AssetTrigger uploads a card's pending images once the card has a remote
// identity and records the returned paths on the local card.
type AssetTrigger struct {
	uploader Uploader
	store    CardStore
	push     func(ctx context.Context, localID string) error
	logger   *slog.Logger
	now      func() time.Time
	readFile func(name string) ([]byte, error)
}

// NewAssetTrigger creates a trigger. push runs the narrower sync for a
// single card after its uploads; it may be nil.
func NewAssetTrigger(uploader Uploader, store CardStore, push func(ctx context.Context, localID string) error, logger *slog.Logger) *AssetTrigger {
	return &AssetTrigger{
		uploader: uploader,
		store:    store,
		push:     push,
		logger:   logger,
		now:      time.Now,
		readFile: os.ReadFile,
	}
}

type slotUpload struct {
	slot models.ImageSlot
	file string
	path string
	sum  string
}

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Trigger uploads every pending slot of card concurrently and returns how
// many uploads succeeded. A failing slot is logged and does not stop the
// others. Nothing happens while the card has no remote id.
func (a *AssetTrigger) Trigger(ctx context.Context, card models.CardRecord) int {
	if a.uploader == nil || card.RemoteID == "" {
		return 0
	}

	var uploads []*slotUpload

	for _, slot := range models.ImageSlots {
		if ref := card.Image(slot); ref.Pending() {
			uploads = append(uploads, &slotUpload{slot: slot, file: ref.LocalFile})
		}
	}

	if len(uploads) == 0 {
		return 0
	}

	var g errgroup.Group

	for _, u := range uploads {
		g.Go(func() error {
			path, sum, err := a.upload(ctx, card.RemoteID, u.slot, u.file)
			if err != nil {
				a.logger.Warn("image upload failed",
					slog.String("local_id", card.LocalID),
					slog.String("slot", string(u.slot)),
					slog.String("error", err.Error()),
				)

				return nil
			}

			u.path = path
			u.sum = sum

			return nil
		})
	}

	_ = g.Wait()

	uploaded := a.record(card.LocalID, uploads)

	if a.push != nil {
		if err := a.push(ctx, card.LocalID); err != nil {
			a.logger.Warn("sync after image upload failed",
				slog.String("local_id", card.LocalID),
				slog.String("error", err.Error()),
			)
		}
	}

	return uploaded
}

// upload sends file and returns the server path and the checksum of the
// bytes that were sent.
func (a *AssetTrigger) upload(ctx context.Context, remoteID string, slot models.ImageSlot, file string) (string, string, error) {
	content, err := a.readFile(file)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", file, err)
	}

	path, err := a.uploader.UploadImage(ctx, remoteID, slot, file, content)
	if err != nil {
		return "", "", err
	}

	return norm.NFC.String(path), contentHash(content), nil
}

// unchanged reports whether file still holds the content that was
// uploaded. Images are usually rewritten in place, so the path alone
// says nothing.
func (a *AssetTrigger) unchanged(file, sum string) bool {
	content, err := a.readFile(file)
	if err != nil {
		return false
	}

	return contentHash(content) == sum
}

// record writes the uploaded paths onto a fresh copy of the stored card.
// A slot whose local file was replaced or rewritten during the upload
// keeps its dirty flag.
func (a *AssetTrigger) record(localID string, uploads []*slotUpload) int {
	cur, err := a.store.FindByLocalID(localID)
	if err != nil || cur == nil {
		a.logger.Warn("card vanished during image upload", slog.String("local_id", localID))
		return 0
	}

	next := cur.Clone()
	uploaded := 0

	for _, u := range uploads {
		if u.path == "" {
			continue
		}

		ref := next.Image(u.slot)
		ref.Path = u.path

		if ref.LocalFile == u.file {
			ref.Checksum = u.sum
			ref.Dirty = !a.unchanged(u.file, u.sum)
		}

		next.SetImage(u.slot, ref)
		uploaded++
	}

	if uploaded == 0 {
		return 0
	}

	next.Touch(a.now())

	if _, err := a.store.Upsert(next); err != nil {
		a.logger.Warn("storing uploaded image paths",
			slog.String("local_id", localID),
			slog.String("error", err.Error()),
		)

		return 0
	}

	a.logger.Info("images uploaded",
		slog.String("local_id", localID),
		slog.Int("count", uploaded),
	)

	return uploaded
}
