package cardsync

import (
	"time"

	"github.com/mwarrick/digital-business-card-sub000/internal/api"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
)

// serverResolution is the precision of server timestamps. Local times are
// truncated to it before comparing, otherwise a freshly pushed record
// would look newer than its own server copy on every pass.
const serverResolution = time.Second

// PushDecision is the outcome of comparing a local card against the
// remote snapshot before pushing.
type PushDecision int

const (
	// PushSkip means the remote copy is as new as the local one.
	PushSkip PushDecision = iota

	// PushCreate means the card has never reached the server. Create it
	// and store the returned remote id locally.
	PushCreate

	// PushUpdate means the local card is newer, or the two cannot be
	// ordered. Send the whole card, children included.
	PushUpdate

	// PushSkipStale means the card points at a remote record that no
	// longer exists. It is not recreated.
	PushSkipStale
)

func (d PushDecision) String() string {
	switch d {
	case PushSkip:
		return "skip"
	case PushCreate:
		return "create"
	case PushUpdate:
		return "update"
	case PushSkipStale:
		return "skip_stale"
	}

	return "unknown"
}

// PullDecision is the outcome of comparing a remote card against its
// local counterpart during the pull phase.
type PullDecision int

const (
	// PullSkip means the local copy is as new as the remote one.
	PullSkip PullDecision = iota

	// PullCreate means no local card carries the remote id yet.
	PullCreate

	// PullOverwrite means the remote card is newer. Its scalars replace
	// the local ones and every child collection is replaced whole.
	PullOverwrite
)

func (d PullDecision) String() string {
	switch d {
	case PullSkip:
		return "skip"
	case PullCreate:
		return "create"
	case PullOverwrite:
		return "overwrite"
	}

	return "unknown"
}

// DecidePush decides what to do with local given the remote snapshot
// entry for its remote id (nil when the snapshot has none). This is a
// pure decision function with no I/O.
//
// An unparseable remote timestamp fails open: the card is pushed.
func DecidePush(local models.CardRecord, remote *api.RemoteCard) PushDecision {
	if local.RemoteID == "" {
		return PushCreate
	}

	if remote == nil {
		return PushSkipStale
	}

	remoteAt, ok := models.ParseServerTime(remote.UpdatedAt)
	if !ok || local.UpdatedAt.IsZero() {
		return PushUpdate
	}

	if local.UpdatedAt.Truncate(serverResolution).After(remoteAt) {
		return PushUpdate
	}

	return PushSkip
}

// DecidePull decides what to do with remote given the local card that
// carries the same remote id (nil when there is none). This is a pure
// decision function with no I/O.
//
// An existing local card is never overwritten when the remote timestamp
// cannot be parsed, since the two cannot be ordered.
func DecidePull(local *models.CardRecord, remote api.RemoteCard) PullDecision {
	if local == nil {
		return PullCreate
	}

	remoteAt, ok := models.ParseServerTime(remote.UpdatedAt)
	if !ok {
		return PullSkip
	}

	if remoteAt.After(local.UpdatedAt.Truncate(serverResolution)) {
		return PullOverwrite
	}

	return PullSkip
}

// RecentlyModified reports whether card was changed within window of now.
// Used by the post-edit push to avoid re-sending the whole store.
func RecentlyModified(card models.CardRecord, now time.Time, window time.Duration) bool {
	if card.UpdatedAt.IsZero() {
		return false
	}

	return now.Sub(card.UpdatedAt) <= window
}
