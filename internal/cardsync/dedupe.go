package cardsync

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mwarrick/digital-business-card-sub000/internal/models"
)

// CardStore is the local card persistence the engine works against.
// internal/store.Store implements it.
type CardStore interface {
	AllCards() ([]models.CardRecord, error)
	FindByLocalID(localID string) (*models.CardRecord, error)
	FindByRemoteID(remoteID string) (*models.CardRecord, error)
	Upsert(card models.CardRecord) (models.CardRecord, error)
	Delete(card models.CardRecord) error
}

// Reconciler collapses local cards that share an identity. It is safe to
// run at any time and never fails: a card that cannot be deleted is
// logged and left for the next sweep.
type Reconciler struct {
	store  CardStore
	logger *slog.Logger
}

// NewReconciler creates a duplicate reconciler over store.
func NewReconciler(store CardStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Sweep removes duplicates and returns how many cards were deleted.
//
// Cards are grouped by non-empty remote id first, then by local id. In
// each group the card with the greatest UpdatedAt is kept (ties go to the
// greatest CreatedAt) and the rest are deleted.
func (r *Reconciler) Sweep(ctx context.Context) int {
	all, err := r.store.AllCards()
	if err != nil {
		r.logger.Warn("duplicate sweep: listing cards", slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	gone := make(map[*models.CardRecord]bool)

	for _, group := range groupBy(all, func(c *models.CardRecord) string { return c.RemoteID }) {
		if ctx.Err() != nil {
			return removed
		}

		winner, losers := pickWinner(group)
		for _, loser := range losers {
			if r.remove(*loser, winner, "remote_id") {
				gone[loser] = true
				removed++
			}
		}
	}

	var remaining []models.CardRecord
	for i := range all {
		if !gone[&all[i]] {
			remaining = append(remaining, all[i])
		}
	}

	for _, group := range groupBy(remaining, func(c *models.CardRecord) string { return c.LocalID }) {
		if ctx.Err() != nil {
			return removed
		}

		winner, losers := pickWinner(group)
		deleted := 0

		for _, loser := range losers {
			if r.remove(*loser, winner, "local_id") {
				deleted++
			}
		}

		if deleted == 0 {
			continue
		}

		removed += deleted

		// Deleting by local id took the winner with it.
		if _, err := r.store.Upsert(*winner); err != nil {
			r.logger.Warn("duplicate sweep: restoring kept card",
				slog.String("local_id", winner.LocalID),
				slog.String("error", err.Error()),
			)
		}
	}

	if removed > 0 {
		r.logger.Info("duplicate sweep complete", slog.Int("removed", removed))
	}

	return removed
}

func (r *Reconciler) remove(loser models.CardRecord, winner *models.CardRecord, key string) bool {
	if err := r.store.Delete(loser); err != nil {
		r.logger.Warn("duplicate sweep: deleting card",
			slog.String("key", key),
			slog.String("local_id", loser.LocalID),
			slog.String("remote_id", loser.RemoteID),
			slog.String("error", err.Error()),
		)

		return false
	}

	r.logger.Debug("removed duplicate card",
		slog.String("key", key),
		slog.String("local_id", loser.LocalID),
		slog.String("remote_id", loser.RemoteID),
		slog.String("kept", winner.LocalID),
	)

	return true
}

// groupBy returns the groups of more than one card sharing a non-empty
// key, in key order.
func groupBy(cards []models.CardRecord, key func(*models.CardRecord) string) [][]*models.CardRecord {
	groups := make(map[string][]*models.CardRecord)

	for i := range cards {
		k := key(&cards[i])
		if k == "" {
			continue
		}

		groups[k] = append(groups[k], &cards[i])
	}

	keys := make([]string, 0, len(groups))
	for k, g := range groups {
		if len(g) > 1 {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	out := make([][]*models.CardRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}

	return out
}

func pickWinner(group []*models.CardRecord) (*models.CardRecord, []*models.CardRecord) {
	winner := group[0]
	for _, c := range group[1:] {
		if c.Newer(winner) {
			winner = c
		}
	}

	losers := make([]*models.CardRecord, 0, len(group)-1)
	for _, c := range group {
		if c != winner {
			losers = append(losers, c)
		}
	}

	return winner, losers
}
