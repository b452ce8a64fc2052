package cardsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mwarrick/digital-business-card-sub000/internal/api"
	errs "github.com/mwarrick/digital-business-card-sub000/internal/errors"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

const (
	// defaultRecentWindow is how far back PushToServer looks for edited
	// cards.
	defaultRecentWindow = 30 * time.Second

	// defaultCancelRetryDelay is the pause before the single retry of a
	// cancelled request.
	defaultCancelRetryDelay = 500 * time.Millisecond

	meterScope = "github.com/mwarrick/digital-business-card-sub000/cardsync"
)

// errLocalFallback ends a pass whose remote snapshot could not be loaded
// because the request was cancelled twice. The pass finishes quietly on
// local data.
var errLocalFallback = errors.New("remote snapshot unavailable, using local data")

// Gateway is the remote side of the sync. *api.Client implements it.
type Gateway interface {
	FetchCards(ctx context.Context) ([]api.RemoteCard, error)
	CreateCard(ctx context.Context, card api.RemoteCard) (api.RemoteCard, error)
	UpdateCard(ctx context.Context, card api.RemoteCard) (api.RemoteCard, error)
	DeleteCard(ctx context.Context, remoteID string) error
	FetchContacts(ctx context.Context) ([]models.ContactRecord, error)
	FetchLeads(ctx context.Context) ([]models.ContactRecord, error)
}

// Store is everything the coordinator persists locally.
// internal/store.Store implements it.
type Store interface {
	CardStore
	ReplaceContacts(kind models.ContactKind, records []models.ContactRecord) error
	AddPendingDelete(remoteID string) error
	PendingDeletes() ([]string, error)
	ClearPendingDelete(remoteID string) error
}

// Phase is a step of a sync pass.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetchingRemote
	PhasePushing
	PhasePulling
	PhaseReconcilingDuplicates
	PhaseSyncingSecondary
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingRemote:
		return "fetching_remote"
	case PhasePushing:
		return "pushing"
	case PhasePulling:
		return "pulling"
	case PhaseReconcilingDuplicates:
		return "reconciling_duplicates"
	case PhaseSyncingSecondary:
		return "syncing_secondary"
	case PhaseFailed:
		return "failed"
	}

	return "unknown"
}

// Status is the observable coordinator state. Reason is only set in
// PhaseFailed.
type Status struct {
	Phase  Phase
	Reason error
}

// Report summarises one pass.
type Report struct {
	Created           int
	Pushed            int
	Pulled            int
	Skipped           int
	Failed            int
	DuplicatesRemoved int
	DeletesRelayed    int
	ImagesUploaded    int
	Contacts          int
	Leads             int

	// Refetched is set when the snapshot was loaded again after the push
	// phase changed the server.
	Refetched bool

	// LocalFallback is set when the server could not be reached because
	// requests kept being cancelled. Local data was left untouched.
	LocalFallback bool
}

func (r Report) attrs() []any {
	return []any{
		slog.Int("created", r.Created),
		slog.Int("pushed", r.Pushed),
		slog.Int("pulled", r.Pulled),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
		slog.Int("duplicates_removed", r.DuplicatesRemoved),
		slog.Int("deletes_relayed", r.DeletesRelayed),
		slog.Int("images_uploaded", r.ImagesUploaded),
		slog.Int("contacts", r.Contacts),
		slog.Int("leads", r.Leads),
	}
}

// Options tunes a Coordinator.
type Options struct {
	// RecentWindow bounds the cards PushToServer considers. Zero means
	// 30 seconds.
	RecentWindow time.Duration

	// CancelRetryDelay is the pause before retrying a cancelled request.
	// Zero retries at once; negative means 500ms.
	CancelRetryDelay time.Duration

	// Meter receives the sync counters. Defaults to the global
	// MeterProvider, which is a no-op unless the host installs one.
	Meter metric.Meter

	// OnStateChange is called after every phase transition.
	OnStateChange func(Status)

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// ReadFile loads on-device images. Defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

type syncMetrics struct {
	pushed     metric.Int64Counter
	pulled     metric.Int64Counter
	failed     metric.Int64Counter
	duplicates metric.Int64Counter
}

func newSyncMetrics(m metric.Meter) syncMetrics {
	if m == nil {
		m = otel.Meter(meterScope)
	}

	pushed, _ := m.Int64Counter("cardsync.records.pushed",
		metric.WithDescription("Cards created or updated on the server"),
	)
	pulled, _ := m.Int64Counter("cardsync.records.pulled",
		metric.WithDescription("Records written locally from the server"),
	)
	failed, _ := m.Int64Counter("cardsync.records.failed",
		metric.WithDescription("Per-record sync failures"),
	)
	duplicates, _ := m.Int64Counter("cardsync.records.duplicates_removed",
		metric.WithDescription("Local duplicate cards removed"),
	)

	return syncMetrics{pushed: pushed, pulled: pulled, failed: failed, duplicates: duplicates}
}

// Coordinator runs sync passes between the local store and the server.
type Coordinator struct {
	gateway Gateway
	store   Store
	dedupe  *Reconciler
	assets  *AssetTrigger
	logger  *slog.Logger
	metrics syncMetrics

	now          func() time.Time
	recentWindow time.Duration
	retryDelay   time.Duration
	onChange     func(Status)

	// running is the in-flight guard for full passes.
	running atomic.Bool

	// creates collapses concurrent creates of the same local card.
	creates singleflight.Group

	mu     sync.Mutex
	status Status
}

// Open builds a coordinator and sweeps the store for duplicates left by
// an earlier run. uploader may be nil, which disables image uploads.
func Open(ctx context.Context, gateway Gateway, uploader Uploader, store Store, logger *slog.Logger, opts Options) *Coordinator {
	c := &Coordinator{
		gateway:      gateway,
		store:        store,
		dedupe:       NewReconciler(store, logger),
		logger:       logger,
		metrics:      newSyncMetrics(opts.Meter),
		now:          opts.Now,
		recentWindow: opts.RecentWindow,
		retryDelay:   opts.CancelRetryDelay,
		onChange:     opts.OnStateChange,
	}

	if c.now == nil {
		c.now = time.Now
	}

	if c.recentWindow <= 0 {
		c.recentWindow = defaultRecentWindow
	}

	if c.retryDelay < 0 {
		c.retryDelay = defaultCancelRetryDelay
	}

	c.assets = NewAssetTrigger(uploader, store, c.pushOne, logger)
	c.assets.now = c.now

	if opts.ReadFile != nil {
		c.assets.readFile = opts.ReadFile
	}

	c.sweep(ctx)

	return c
}

// State returns the current phase and, when failed, the reason.
func (c *Coordinator) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

func (c *Coordinator) setPhase(p Phase, reason error) {
	c.mu.Lock()
	c.status = Status{Phase: p, Reason: reason}
	st := c.status
	c.mu.Unlock()

	c.logger.Debug("sync phase", slog.String("phase", p.String()))

	if c.onChange != nil {
		c.onChange(st)
	}
}

func (c *Coordinator) begin() error {
	if !c.running.CompareAndSwap(false, true) {
		return errs.ErrSyncInProgress
	}

	return nil
}

// PerformFullSync runs one full pass: fetch the remote snapshot, relay
// queued deletes, push eligible local cards, pull remote changes, sweep
// duplicates, then replace the local contacts and leads.
//
// A call made while another pass is running returns immediately with an
// empty report and no error. Per-record failures are logged and counted
// in the report. An expired session or an unusable remote collection
// fails the pass and is returned.
func (c *Coordinator) PerformFullSync(ctx context.Context) (Report, error) {
	if err := c.begin(); err != nil {
		c.logger.Debug("full sync already running, ignoring request")
		return Report{}, nil
	}
	defer c.running.Store(false)

	var rep Report

	err := c.fullSync(ctx, &rep)

	switch {
	case errors.Is(err, errLocalFallback):
		rep.LocalFallback = true
		c.logger.Info("remote fetch cancelled, keeping local data")
		c.setPhase(PhaseIdle, nil)

		return rep, nil
	case err != nil:
		c.logger.Warn("full sync failed", append(rep.attrs(), slog.String("error", err.Error()))...)
		c.setPhase(PhaseFailed, err)

		return rep, err
	}

	c.logger.Info("full sync complete", rep.attrs()...)
	c.setPhase(PhaseIdle, nil)

	return rep, nil
}

func (c *Coordinator) fullSync(ctx context.Context, rep *Report) error {
	c.setPhase(PhaseFetchingRemote, nil)

	snapshot, err := c.fetchSnapshot(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrCancelled) {
			return errLocalFallback
		}

		return fmt.Errorf("fetching remote snapshot: %w", err)
	}

	c.setPhase(PhasePushing, nil)

	// Cards deleted locally are never pulled back, whether or not the
	// remote delete went through.
	skip, err := c.relayPendingDeletes(ctx, rep)
	if err != nil {
		return err
	}

	pushed, err := c.pushAll(ctx, snapshot, false, rep)
	if err != nil {
		return err
	}

	if len(pushed) > 0 || rep.DeletesRelayed > 0 {
		fresh, err := c.fetchSnapshot(ctx)

		switch {
		case err == nil:
			snapshot = fresh
			rep.Refetched = true
		case errors.Is(err, errs.ErrAuthExpired), ctx.Err() != nil:
			return fmt.Errorf("re-fetching remote snapshot: %w", err)
		default:
			c.logger.Warn("re-fetch after push failed, pull skips pushed cards",
				slog.Int("pushed", len(pushed)),
				slog.String("error", err.Error()),
			)

			for id := range pushed {
				skip[id] = struct{}{}
			}
		}
	}

	c.setPhase(PhasePulling, nil)

	if err := c.pullAll(ctx, snapshot, skip, rep); err != nil {
		return err
	}

	c.setPhase(PhaseReconcilingDuplicates, nil)
	rep.DuplicatesRemoved = c.sweep(ctx)

	c.setPhase(PhaseSyncingSecondary, nil)

	return c.syncSecondary(ctx, rep)
}

// PushToServer is the lightweight post-edit push: fetch the snapshot and
// push only cards modified within the recent window. It does not pull.
// Callers run it in the background and log its error.
func (c *Coordinator) PushToServer(ctx context.Context) (Report, error) {
	var rep Report

	c.pushPhase(PhaseFetchingRemote, nil)

	snapshot, err := c.fetchSnapshot(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrCancelled) {
			rep.LocalFallback = true
			c.pushPhase(PhaseIdle, nil)

			return rep, nil
		}

		err = fmt.Errorf("fetching remote snapshot: %w", err)
		c.pushPhase(PhaseFailed, err)

		return rep, err
	}

	c.pushPhase(PhasePushing, nil)

	if _, err := c.pushAll(ctx, snapshot, true, &rep); err != nil {
		c.pushPhase(PhaseFailed, err)
		return rep, err
	}

	c.logger.Debug("post-edit push complete", rep.attrs()...)
	c.pushPhase(PhaseIdle, nil)

	return rep, nil
}

// pushPhase reports a PushToServer transition unless a full pass owns
// the state.
func (c *Coordinator) pushPhase(p Phase, reason error) {
	if c.running.Load() {
		return
	}

	c.setPhase(p, reason)
}

// Sweep runs the duplicate reconciler outside a full pass.
func (c *Coordinator) Sweep(ctx context.Context) int {
	return c.sweep(ctx)
}

func (c *Coordinator) sweep(ctx context.Context) int {
	removed := c.dedupe.Sweep(ctx)
	if removed > 0 {
		c.metrics.duplicates.Add(ctx, int64(removed))
	}

	return removed
}

// DeleteCard deletes a card locally and relays the delete to the server.
// The local delete always stands. A remote delete that cannot be relayed
// now is queued and retried at the start of the next full pass; an
// expired session is still returned so the caller can re-authenticate.
func (c *Coordinator) DeleteCard(ctx context.Context, localID string) error {
	card, err := c.store.FindByLocalID(localID)
	if err != nil {
		return fmt.Errorf("looking up card %s: %w", localID, err)
	}

	if card == nil {
		return fmt.Errorf("card %s: %w", localID, errs.ErrCardNotFound)
	}

	if err := c.store.Delete(*card); err != nil {
		return fmt.Errorf("deleting card %s: %w", localID, err)
	}

	if card.RemoteID == "" {
		return nil
	}

	// Duplicates of the same remote record go with it.
	for {
		dup, err := c.store.FindByRemoteID(card.RemoteID)
		if err != nil {
			c.logger.Warn("looking up duplicate of deleted card",
				slog.String("remote_id", card.RemoteID),
				slog.String("error", err.Error()),
			)

			break
		}

		if dup == nil {
			break
		}

		if err := c.store.Delete(*dup); err != nil {
			c.logger.Warn("deleting duplicate of deleted card",
				slog.String("local_id", dup.LocalID),
				slog.String("error", err.Error()),
			)

			break
		}
	}

	return c.relayDelete(ctx, card.RemoteID)
}

func (c *Coordinator) relayDelete(ctx context.Context, remoteID string) error {
	err := c.gateway.DeleteCard(ctx, remoteID)
	if err == nil {
		return nil
	}

	if permanentRejection(err) {
		c.logger.Warn("server refused delete, dropping it",
			slog.String("remote_id", remoteID),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if qerr := c.store.AddPendingDelete(remoteID); qerr != nil {
		return fmt.Errorf("queueing delete of %s: %w", remoteID, qerr)
	}

	c.logger.Info("remote delete queued",
		slog.String("remote_id", remoteID),
		slog.String("error", err.Error()),
	)

	if errors.Is(err, errs.ErrAuthExpired) {
		return err
	}

	return nil
}

// relayPendingDeletes retries queued remote deletes. It returns every
// queued remote id so the pull phase leaves them alone.
func (c *Coordinator) relayPendingDeletes(ctx context.Context, rep *Report) (map[string]struct{}, error) {
	skip := make(map[string]struct{})

	ids, err := c.store.PendingDeletes()
	if err != nil {
		c.logger.Warn("listing pending deletes", slog.String("error", err.Error()))
		return skip, nil
	}

	for _, id := range ids {
		skip[id] = struct{}{}

		err := c.gateway.DeleteCard(ctx, id)

		switch {
		case err == nil:
			rep.DeletesRelayed++
		case errors.Is(err, errs.ErrAuthExpired):
			return skip, fmt.Errorf("relaying delete of %s: %w", id, err)
		case permanentRejection(err):
			c.logger.Warn("server refused queued delete, dropping it",
				slog.String("remote_id", id),
				slog.String("error", err.Error()),
			)
		default:
			c.logger.Debug("queued delete still pending",
				slog.String("remote_id", id),
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := c.store.ClearPendingDelete(id); err != nil {
			c.logger.Warn("clearing pending delete",
				slog.String("remote_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return skip, nil
}

// permanentRejection reports whether the server refused a request in a
// way that retrying will not fix.
func permanentRejection(err error) bool {
	var rej *api.ServerRejectedError
	if !errors.As(err, &rej) {
		return false
	}

	if rej.Status == http.StatusTooManyRequests {
		return false
	}

	return rej.Status < http.StatusInternalServerError
}

// retryCancelled runs op, retrying it once after the configured delay
// when it fails because the request was cancelled.
func (c *Coordinator) retryCancelled(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1),
		ctx,
	)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, errs.ErrCancelled) {
			return backoff.Permanent(err)
		}

		return err
	}, policy)
}

// fetchSnapshot loads the remote card collection keyed by remote id.
func (c *Coordinator) fetchSnapshot(ctx context.Context) (map[string]api.RemoteCard, error) {
	var cards []api.RemoteCard

	err := c.retryCancelled(ctx, func() error {
		var err error
		cards, err = c.gateway.FetchCards(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]api.RemoteCard, len(cards))

	for _, rc := range cards {
		if rc.ID == "" {
			c.logger.Warn("remote card without id ignored", slog.String("first_name", rc.FirstName))
			continue
		}

		snapshot[string(rc.ID)] = rc
	}

	return snapshot, nil
}

// pushAll pushes every eligible local card and returns the remote ids
// that were changed on the server.
func (c *Coordinator) pushAll(ctx context.Context, snapshot map[string]api.RemoteCard, recentOnly bool, rep *Report) (map[string]struct{}, error) {
	pushed := make(map[string]struct{})

	cards, err := c.store.AllCards()
	if err != nil {
		return pushed, fmt.Errorf("listing local cards: %w", err)
	}

	now := c.now()

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		if recentOnly && !RecentlyModified(card, now, c.recentWindow) {
			continue
		}

		var remote *api.RemoteCard
		if rc, ok := snapshot[card.RemoteID]; ok && card.RemoteID != "" {
			remote = &rc
		}

		decision := DecidePush(card, remote)

		result, err := c.applyPush(ctx, card, decision)
		if err != nil {
			if errors.Is(err, errs.ErrAuthExpired) {
				return pushed, fmt.Errorf("pushing card %s: %w", card.LocalID, err)
			}

			rep.Failed++
			c.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", "push")))
			c.logger.Warn("push failed",
				slog.String("local_id", card.LocalID),
				slog.String("remote_id", card.RemoteID),
				slog.String("decision", decision.String()),
				slog.String("error", err.Error()),
			)

			continue
		}

		switch decision {
		case PushCreate:
			rep.Created++
			rep.Pushed++
		case PushUpdate:
			rep.Pushed++
		case PushSkipStale:
			rep.Skipped++
			c.logger.Info("card points at a vanished remote record, not recreating",
				slog.String("local_id", card.LocalID),
				slog.String("remote_id", card.RemoteID),
			)

			continue
		case PushSkip:
			rep.Skipped++
		}

		if decision == PushCreate || decision == PushUpdate {
			pushed[result.RemoteID] = struct{}{}
			c.metrics.pushed.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision.String())))
		}

		if result.RemoteID != "" && result.HasPendingImages() {
			rep.ImagesUploaded += c.assets.Trigger(ctx, result)
			pushed[result.RemoteID] = struct{}{}
		}
	}

	return pushed, nil
}

func (c *Coordinator) applyPush(ctx context.Context, card models.CardRecord, decision PushDecision) (models.CardRecord, error) {
	switch decision {
	case PushCreate:
		return c.createOnce(ctx, card)
	case PushUpdate:
		return c.update(ctx, card)
	}

	return card, nil
}

// pushOne sends a single card without consulting a snapshot. Used after
// image uploads to reconcile the path fields just written.
func (c *Coordinator) pushOne(ctx context.Context, localID string) error {
	card, err := c.store.FindByLocalID(localID)
	if err != nil {
		return fmt.Errorf("looking up card %s: %w", localID, err)
	}

	if card == nil {
		return fmt.Errorf("card %s: %w", localID, errs.ErrCardNotFound)
	}

	if card.RemoteID == "" {
		_, err = c.createOnce(ctx, *card)
	} else {
		_, err = c.update(ctx, *card)
	}

	if err != nil {
		c.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", "push")))
		return fmt.Errorf("pushing card %s: %w", localID, err)
	}

	c.metrics.pushed.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", "single")))

	return nil
}

// createOnce creates card on the server. Concurrent calls for the same
// local card share one request, and a card that gained a remote id in
// the meantime is not created again.
func (c *Coordinator) createOnce(ctx context.Context, card models.CardRecord) (models.CardRecord, error) {
	v, err, shared := c.creates.Do(card.LocalID, func() (interface{}, error) {
		cur, err := c.store.FindByLocalID(card.LocalID)
		if err != nil {
			return nil, fmt.Errorf("looking up card %s: %w", card.LocalID, err)
		}

		if cur == nil {
			return nil, fmt.Errorf("card %s: %w", card.LocalID, errs.ErrCardNotFound)
		}

		if cur.RemoteID != "" {
			return *cur, nil
		}

		created, err := c.gateway.CreateCard(ctx, api.CardFromRecord(*cur))
		if err != nil {
			return nil, err
		}

		c.logger.Info("card created on server",
			slog.String("local_id", cur.LocalID),
			slog.String("remote_id", string(created.ID)),
		)

		return c.writeBack(ctx, *cur, created)
	})
	if err != nil {
		return models.CardRecord{}, err
	}

	if shared {
		c.logger.Debug("create shared with concurrent push", slog.String("local_id", card.LocalID))
	}

	return v.(models.CardRecord), nil
}

func (c *Coordinator) update(ctx context.Context, card models.CardRecord) (models.CardRecord, error) {
	updated, err := c.gateway.UpdateCard(ctx, api.CardFromRecord(card))
	if err != nil {
		return models.CardRecord{}, err
	}

	return c.writeBack(ctx, card, updated)
}

// writeBack records the server's answer to a create or update on the
// current local copy of sent: remote id, remote image paths and the
// server timestamp.
func (c *Coordinator) writeBack(ctx context.Context, sent models.CardRecord, remote api.RemoteCard) (models.CardRecord, error) {
	cur, err := c.store.FindByLocalID(sent.LocalID)
	if err != nil {
		return models.CardRecord{}, fmt.Errorf("looking up card %s: %w", sent.LocalID, err)
	}

	if cur == nil {
		// Deleted locally while the request was in flight. Delete wins.
		if remote.ID != "" {
			if err := c.relayDelete(ctx, string(remote.ID)); err != nil {
				c.logger.Warn("relaying delete of card removed mid-push",
					slog.String("remote_id", string(remote.ID)),
					slog.String("error", err.Error()),
				)
			}
		}

		return models.CardRecord{}, fmt.Errorf("card %s: %w", sent.LocalID, errs.ErrCardNotFound)
	}

	next := cur.Clone()
	if remote.ID != "" {
		next.RemoteID = string(remote.ID)
	}

	fromServer := remote.ToRecord()
	for _, slot := range models.ImageSlots {
		if p := fromServer.Image(slot).Path; p != "" {
			ref := next.Image(slot)
			ref.Path = norm.NFC.String(p)
			next.SetImage(slot, ref)
		}
	}

	if at, ok := models.ParseServerTime(remote.UpdatedAt); ok {
		next.Touch(at)
	}

	stored, err := c.store.Upsert(next)
	if err != nil {
		return models.CardRecord{}, fmt.Errorf("storing server answer for %s: %w", sent.LocalID, err)
	}

	return stored, nil
}

// pullAll applies the snapshot to the local store, skipping the remote
// ids in skip.
func (c *Coordinator) pullAll(ctx context.Context, snapshot map[string]api.RemoteCard, skip map[string]struct{}, rep *Report) error {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, ok := skip[id]; ok {
			continue
		}

		remote := snapshot[id]

		local, err := c.store.FindByRemoteID(id)
		if err != nil {
			c.pullFailed(ctx, rep, id, err)
			continue
		}

		decision := DecidePull(local, remote)

		var next models.CardRecord

		switch decision {
		case PullCreate:
			next = remote.ToRecord()
		case PullOverwrite:
			next = local.Clone()
			next.ReplaceContent(remote.ToRecord())
		default:
			continue
		}

		for _, slot := range models.ImageSlots {
			ref := next.Image(slot)
			ref.Path = norm.NFC.String(ref.Path)
			next.SetImage(slot, ref)
		}

		if _, err := c.store.Upsert(next); err != nil {
			c.pullFailed(ctx, rep, id, err)
			continue
		}

		rep.Pulled++
		c.metrics.pulled.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "card")))
		c.logger.Debug("pulled card",
			slog.String("remote_id", id),
			slog.String("decision", decision.String()),
		)
	}

	return nil
}

func (c *Coordinator) pullFailed(ctx context.Context, rep *Report, remoteID string, err error) {
	rep.Failed++
	c.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", "pull")))
	c.logger.Warn("pull failed",
		slog.String("remote_id", remoteID),
		slog.String("error", err.Error()),
	)
}

// syncSecondary replaces the local contacts and then the local leads
// with the server's collections.
func (c *Coordinator) syncSecondary(ctx context.Context, rep *Report) error {
	families := []struct {
		kind  models.ContactKind
		fetch func(context.Context) ([]models.ContactRecord, error)
		count *int
	}{
		{models.KindContact, c.gateway.FetchContacts, &rep.Contacts},
		{models.KindLead, c.gateway.FetchLeads, &rep.Leads},
	}

	for _, fam := range families {
		var records []models.ContactRecord

		err := c.retryCancelled(ctx, func() error {
			var err error
			records, err = fam.fetch(ctx)

			return err
		})
		if errors.Is(err, errs.ErrCancelled) {
			c.logger.Info("fetch cancelled, keeping local records", slog.String("kind", string(fam.kind)))
			continue
		}

		if err != nil {
			return fmt.Errorf("syncing %ss: %w", fam.kind, err)
		}

		if err := c.store.ReplaceContacts(fam.kind, records); err != nil {
			return fmt.Errorf("storing %ss: %w", fam.kind, err)
		}

		*fam.count = len(records)
		c.metrics.pulled.Add(ctx, int64(len(records)), metric.WithAttributes(attribute.String("kind", string(fam.kind))))
	}

	return nil
}
