package cardsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mwarrick/digital-business-card-sub000/internal/api"
	errs "github.com/mwarrick/digital-business-card-sub000/internal/errors"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	"github.com/mwarrick/digital-business-card-sub000/internal/store"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	t0   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tNow = t0.Add(24 * time.Hour)
)

func at(offset time.Duration) time.Time { return t0.Add(offset) }

func serverTime(t time.Time) string { return models.FormatServerTime(t) }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOptions() Options {
	return Options{
		Now:              func() time.Time { return tNow },
		CancelRetryDelay: 0,
	}
}

func openCoordinator(t *testing.T, gw Gateway, up Uploader, st Store, opts Options) *Coordinator {
	t.Helper()
	return Open(context.Background(), gw, up, st, quietLogger, opts)
}

// seed stores a card and returns the stored copy.
func seed(t *testing.T, st Store, c models.CardRecord) models.CardRecord {
	t.Helper()
	stored, err := st.Upsert(c)
	require.NoError(t, err)
	return stored
}

func localCard(first, remoteID string, updated time.Time) models.CardRecord {
	c := models.NewCard(t0)
	c.FirstName = first
	c.RemoteID = remoteID
	c.UpdatedAt = updated
	return c
}

func mustFind(t *testing.T, st Store, localID string) models.CardRecord {
	t.Helper()
	c, err := st.FindByLocalID(localID)
	require.NoError(t, err)
	require.NotNil(t, c, "card %s not found", localID)
	return *c
}

func allCards(t *testing.T, st Store) []models.CardRecord {
	t.Helper()
	cards, err := st.AllCards()
	require.NoError(t, err)
	return cards
}

// fakeRemote is an in-memory card server. Every write stamps the card
// with the next tick of its own clock, one second apart.
type fakeRemote struct {
	mu       sync.Mutex
	cards    map[string]api.RemoteCard
	nextID   int
	clock    time.Time
	creates  int
	updates  int
	deletes  []string
	contacts []models.ContactRecord
	leads    []models.ContactRecord

	// createGate, when set, blocks CreateCard until closed.
	createGate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		cards:  make(map[string]api.RemoteCard),
		nextID: 41,
		clock:  tNow,
	}
}

func (f *fakeRemote) tick() string {
	f.clock = f.clock.Add(time.Second)
	return serverTime(f.clock)
}

func (f *fakeRemote) put(c api.RemoteCard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[string(c.ID)] = c
}

func (f *fakeRemote) get(id string) (api.RemoteCard, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	return c, ok
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}

func (f *fakeRemote) FetchCards(ctx context.Context) ([]api.RemoteCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.cards))
	for id := range f.cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]api.RemoteCard, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.cards[id])
	}
	return out, nil
}

func (f *fakeRemote) CreateCard(ctx context.Context, c api.RemoteCard) (api.RemoteCard, error) {
	if f.createGate != nil {
		<-f.createGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.creates++
	c.ID = api.FlexID(strconv.Itoa(f.nextID))
	now := f.tick()
	c.CreatedAt = now
	c.UpdatedAt = now
	f.cards[string(c.ID)] = c
	return c, nil
}

func (f *fakeRemote) UpdateCard(ctx context.Context, c api.RemoteCard) (api.RemoteCard, error) {
	if c.ID == "" {
		return api.RemoteCard{}, fmt.Errorf("updating card: %w", errs.ErrMissingIdentity)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, ok := f.cards[string(c.ID)]
	if !ok {
		return api.RemoteCard{}, &api.ServerRejectedError{Endpoint: "/api/cards/", Status: 404, Message: "card not found"}
	}

	f.updates++
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = f.tick()
	f.cards[string(c.ID)] = c
	return c, nil
}

func (f *fakeRemote) DeleteCard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, id)
	delete(f.cards, id)
	return nil
}

func (f *fakeRemote) FetchContacts(ctx context.Context) ([]models.ContactRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContactRecord(nil), f.contacts...), nil
}

func (f *fakeRemote) FetchLeads(ctx context.Context) ([]models.ContactRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContactRecord(nil), f.leads...), nil
}

// remoteCard builds a wire card with the given server timestamp.
func remoteCard(id, first string, updated time.Time) api.RemoteCard {
	return api.RemoteCard{
		ID:        api.FlexID(id),
		FirstName: first,
		IsActive:  true,
		CreatedAt: serverTime(t0),
		UpdatedAt: serverTime(updated),
		Emails:    []api.RemoteEmail{},
		Phones:    []api.RemotePhone{},
		Websites:  []api.RemoteWebsite{},
	}
}
