package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mwarrick/digital-business-card-sub000/internal/api"
	"github.com/mwarrick/digital-business-card-sub000/internal/cardsync"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	"github.com/mwarrick/digital-business-card-sub000/internal/store"
	"github.com/stretchr/testify/require"
)

const testToken = "e2e-test-token"

var (
	t0          = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	serverStart = t0.Add(24 * time.Hour)
)

func at(offset time.Duration) time.Time { return t0.Add(offset) }

// upload is one multipart image upload received by the card server.
type upload struct {
	CardID    string
	MediaType string
	Filename  string
	Content   string
}

// cardServer is an in-process card API speaking the JSON envelope. Every
// write stamps the card with the next second of the server clock.
type cardServer struct {
	mu       sync.Mutex
	cards    map[string]api.RemoteCard
	nextID   int
	clock    time.Time
	contacts []api.RemoteContact
	leads    []api.RemoteContact
	uploads  []upload
	requests map[string]int

	// failDeletes makes DELETE answer 503.
	failDeletes bool

	// createDelay holds each create before answering.
	createDelay time.Duration
}

func newCardServer(t *testing.T) (*cardServer, *httptest.Server) {
	t.Helper()

	s := &cardServer{
		cards:    make(map[string]api.RemoteCard),
		nextID:   41,
		clock:    serverStart,
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/cards/", s.handleCards)
	mux.HandleFunc("/api/contacts/", s.handleList(func() []api.RemoteContact { return s.contacts }))
	mux.HandleFunc("/api/leads/", s.handleList(func() []api.RemoteContact { return s.leads }))
	mux.HandleFunc("/api/media/upload", s.handleUpload)

	srv := httptest.NewServer(s.authenticate(mux))
	t.Cleanup(srv.Close)

	return s, srv
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": success, "message": message}
	if data != nil {
		body["data"] = data
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *cardServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeEnvelope(w, http.StatusUnauthorized, false, "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *cardServer) tick() string {
	s.clock = s.clock.Add(time.Second)
	return models.FormatServerTime(s.clock)
}

func (s *cardServer) handleCards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeEnvelope(w, http.StatusOK, true, "", s.list())

	case http.MethodPost:
		var c api.RemoteCard
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeEnvelope(w, http.StatusBadRequest, false, err.Error(), nil)
			return
		}

		if s.createDelay > 0 {
			time.Sleep(s.createDelay)
		}

		s.mu.Lock()
		s.nextID++
		c.ID = api.FlexID(strconv.Itoa(s.nextID))
		now := s.tick()
		c.CreatedAt = now
		c.UpdatedAt = now
		s.cards[string(c.ID)] = c
		s.mu.Unlock()

		writeEnvelope(w, http.StatusCreated, true, "card created", c)

	case http.MethodPut:
		id := r.URL.Query().Get("id")

		var c api.RemoteCard
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeEnvelope(w, http.StatusBadRequest, false, err.Error(), nil)
			return
		}

		s.mu.Lock()
		prev, ok := s.cards[id]
		if !ok {
			s.mu.Unlock()
			writeEnvelope(w, http.StatusNotFound, false, "card not found", nil)
			return
		}
		c.ID = api.FlexID(id)
		c.CreatedAt = prev.CreatedAt
		c.UpdatedAt = s.tick()
		s.cards[id] = c
		s.mu.Unlock()

		writeEnvelope(w, http.StatusOK, true, "card updated", c)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")

		s.mu.Lock()
		fail := s.failDeletes
		if !fail {
			delete(s.cards, id)
		}
		s.mu.Unlock()

		if fail {
			writeEnvelope(w, http.StatusServiceUnavailable, false, "maintenance", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "card deleted", nil)

	default:
		writeEnvelope(w, http.StatusMethodNotAllowed, false, "method not allowed", nil)
	}
}

func (s *cardServer) handleList(items func() []api.RemoteContact) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]api.RemoteContact{}, items()...)
		s.mu.Unlock()
		writeEnvelope(w, http.StatusOK, true, "", out)
	}
}

func (s *cardServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, err.Error(), nil)
		return
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, err.Error(), nil)
		return
	}
	defer f.Close()

	content, _ := io.ReadAll(f)

	u := upload{
		CardID:    r.FormValue("business_card_id"),
		MediaType: r.FormValue("media_type"),
		Filename:  hdr.Filename,
		Content:   string(content),
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, u)
	s.mu.Unlock()

	writeEnvelope(w, http.StatusOK, true, "uploaded", map[string]string{
		"path": "uploads/" + u.CardID + "/" + u.MediaType + "_" + u.Filename,
	})
}

func (s *cardServer) list() []api.RemoteCard {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.cards))
	for id := range s.cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]api.RemoteCard, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cards[id])
	}
	return out
}

// put stores c as the server copy, stamped at updated.
func (s *cardServer) put(id, first string, updated time.Time) api.RemoteCard {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := api.RemoteCard{
		ID:        api.FlexID(id),
		FirstName: first,
		IsActive:  true,
		CreatedAt: models.FormatServerTime(t0),
		UpdatedAt: models.FormatServerTime(updated),
		Emails:    []api.RemoteEmail{},
		Phones:    []api.RemotePhone{},
		Websites:  []api.RemoteWebsite{},
	}
	s.cards[id] = c
	return c
}

func (s *cardServer) update(id string, fn func(*api.RemoteCard)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cards[id]
	fn(&c)
	s.cards[id] = c
}

func (s *cardServer) get(id string) (api.RemoteCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	return c, ok
}

func (s *cardServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

func (s *cardServer) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests["POST /api/cards/"] + s.requests["PUT /api/cards/"] + s.requests["DELETE /api/cards/"]
}

func (s *cardServer) setFailDeletes(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDeletes = v
}

// harness wires the real API client, bbolt store and coordinator to a
// card server.
type harness struct {
	server *cardServer
	store  *store.Store
	client *api.Client
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	server, srv := newCardServer(t)

	dir := t.TempDir()
	st, err := store.LoadAt(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SetToken(testToken))

	return &harness{
		server: server,
		store:  st,
		client: api.NewClient(srv.URL, st, srv.Client()),
		dir:    dir,
	}
}

func (h *harness) open(t *testing.T, opts cardsync.Options) *cardsync.Coordinator {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return cardsync.Open(context.Background(), h.client, h.client, h.store, logger, opts)
}

func (h *harness) seed(t *testing.T, c models.CardRecord) models.CardRecord {
	t.Helper()
	stored, err := h.store.Upsert(c)
	require.NoError(t, err)
	return stored
}

func (h *harness) cards(t *testing.T) []models.CardRecord {
	t.Helper()
	cards, err := h.store.AllCards()
	require.NoError(t, err)
	return cards
}

func (h *harness) find(t *testing.T, localID string) models.CardRecord {
	t.Helper()
	c, err := h.store.FindByLocalID(localID)
	require.NoError(t, err)
	require.NotNil(t, c, "card %s not found", localID)
	return *c
}

func localCard(first, remoteID string, updated time.Time) models.CardRecord {
	c := models.NewCard(t0)
	c.FirstName = first
	c.RemoteID = remoteID
	c.UpdatedAt = updated
	return c
}
