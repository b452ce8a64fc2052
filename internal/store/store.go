package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the directory holding the
	// database file.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file. It
	// holds the bearer credential.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket            = []byte("app")
	tokenKey             = []byte("token")
	cardsBucket          = []byte("cards")
	cardsByRemoteBucket  = []byte("cards_by_remote")
	pendingDeletesBucket = []byte("pending_deletes")
)

func contactBucket(kind models.ContactKind) []byte {
	return []byte("contacts:" + string(kind))
}

// Store is the local card store. Every record is kept as one JSON value
// (scalars and child collections together) keyed by LocalID, so a record
// is always written atomically. bbolt allows a single writer at a time,
// which serializes all mutations.
type Store struct {
	db *bolt.DB
}

// LoadAt opens the store at the given path, creating the file, its
// directory and all buckets if needed.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			appBucket,
			cardsBucket,
			cardsByRemoteBucket,
			pendingDeletesBucket,
			contactBucket(models.KindContact),
			contactBucket(models.KindLead),
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Token returns the cached bearer credential, or empty string.
func (s *Store) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the bearer credential.
func (s *Store) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}

// ClearToken forgets the bearer credential. Called when the server
// answers 401.
func (s *Store) ClearToken() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(tokenKey)
	})
}

func getCard(b *bolt.Bucket, localID string) (*models.CardRecord, error) {
	if localID == "" {
		return nil, nil
	}

	v := b.Get([]byte(localID))
	if v == nil {
		return nil, nil
	}

	var c models.CardRecord
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, fmt.Errorf("decoding card %s: %w", localID, err)
	}

	return &c, nil
}

func putCard(b *bolt.Bucket, c models.CardRecord) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding card %s: %w", c.LocalID, err)
	}

	return b.Put([]byte(c.LocalID), data)
}

// findByRemote resolves a remote id through the index and falls back to
// a scan when the index entry is missing or stale.
func findByRemote(tx *bolt.Tx, remoteID string) (*models.CardRecord, error) {
	if remoteID == "" {
		return nil, nil
	}

	cards := tx.Bucket(cardsBucket)

	if lid := tx.Bucket(cardsByRemoteBucket).Get([]byte(remoteID)); lid != nil {
		c, err := getCard(cards, string(lid))
		if err != nil {
			return nil, err
		}

		if c != nil && c.RemoteID == remoteID {
			return c, nil
		}
	}

	var found *models.CardRecord

	err := cards.ForEach(func(k, v []byte) error {
		if found != nil {
			return nil
		}

		var c models.CardRecord
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("decoding card %s: %w", k, err)
		}

		if c.RemoteID == remoteID {
			found = &c
		}

		return nil
	})

	return found, err
}

// AllCards returns every card ordered by LocalID.
func (s *Store) AllCards() ([]models.CardRecord, error) {
	var result []models.CardRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(cardsBucket).ForEach(func(k, v []byte) error {
			var c models.CardRecord
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding card %s: %w", k, err)
			}

			result = append(result, c)

			return nil
		})
	})

	return result, err
}

// FindByLocalID returns the card with the given local id, or nil.
func (s *Store) FindByLocalID(localID string) (*models.CardRecord, error) {
	var c *models.CardRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = getCard(tx.Bucket(cardsBucket), localID)

		return err
	})

	return c, err
}

// FindByRemoteID returns the card carrying the given remote id, or nil.
func (s *Store) FindByRemoteID(remoteID string) (*models.CardRecord, error) {
	var c *models.CardRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = findByRemote(tx, remoteID)

		return err
	})

	return c, err
}

// Upsert stores card. An existing record is matched by LocalID first and
// then by non-empty RemoteID; on a match every field except LocalID and
// CreatedAt is overwritten and the child collections are replaced as a
// whole. Without a match the card is inserted, receiving a LocalID if it
// has none. The stored record is returned.
//
// When the card is matched by LocalID and its RemoteID is already held
// by another record, the index moves to this card and the other record
// becomes a duplicate for the DuplicateReconciler to collapse.
func (s *Store) Upsert(card models.CardRecord) (models.CardRecord, error) {
	stored := card.Clone()

	err := s.db.Update(func(tx *bolt.Tx) error {
		cards := tx.Bucket(cardsBucket)
		index := tx.Bucket(cardsByRemoteBucket)

		existing, err := getCard(cards, card.LocalID)
		if err != nil {
			return err
		}

		if existing == nil {
			existing, err = findByRemote(tx, card.RemoteID)
			if err != nil {
				return err
			}
		}

		if existing != nil {
			stored.LocalID = existing.LocalID
			if !existing.CreatedAt.IsZero() {
				stored.CreatedAt = existing.CreatedAt
			}

			if existing.RemoteID != "" && existing.RemoteID != stored.RemoteID {
				if lid := index.Get([]byte(existing.RemoteID)); string(lid) == existing.LocalID {
					if err := index.Delete([]byte(existing.RemoteID)); err != nil {
						return err
					}
				}
			}
		} else {
			if stored.LocalID == "" {
				stored.LocalID = uuid.NewString()
			}

			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = stored.UpdatedAt
			}
		}

		if stored.RemoteID != "" {
			if err := index.Put([]byte(stored.RemoteID), []byte(stored.LocalID)); err != nil {
				return err
			}
		}

		return putCard(cards, stored)
	})
	if err != nil {
		return models.CardRecord{}, fmt.Errorf("upserting card: %w", err)
	}

	return stored, nil
}

// Delete removes card. The remote index is repointed at another record
// with the same RemoteID if one remains, otherwise removed.
func (s *Store) Delete(card models.CardRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		cards := tx.Bucket(cardsBucket)
		index := tx.Bucket(cardsByRemoteBucket)

		target, err := getCard(cards, card.LocalID)
		if err != nil {
			return err
		}

		if target == nil {
			return nil
		}

		if err := cards.Delete([]byte(target.LocalID)); err != nil {
			return err
		}

		if target.RemoteID == "" {
			return nil
		}

		if lid := index.Get([]byte(target.RemoteID)); lid != nil && string(lid) != target.LocalID {
			return nil
		}

		if err := index.Delete([]byte(target.RemoteID)); err != nil {
			return err
		}

		other, err := findByRemote(tx, target.RemoteID)
		if err != nil {
			return err
		}

		if other != nil {
			return index.Put([]byte(other.RemoteID), []byte(other.LocalID))
		}

		return nil
	})
}

// ReplaceContacts discards every stored record of the given kind and
// stores records in their place, in one transaction.
func (s *Store) ReplaceContacts(kind models.ContactKind, records []models.ContactRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		name := contactBucket(kind)

		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}

		for i, rec := range records {
			rec.Kind = kind

			key := rec.RemoteID
			if key == "" {
				key = fmt.Sprintf("_%08d", i)
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// AllContacts returns every stored record of the given kind.
func (s *Store) AllContacts(kind models.ContactKind) ([]models.ContactRecord, error) {
	var result []models.ContactRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(contactBucket(kind))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var rec models.ContactRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			result = append(result, rec)

			return nil
		})
	})

	return result, err
}

// AddPendingDelete remembers a remote deletion that could not be relayed.
func (s *Store) AddPendingDelete(remoteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDeletesBucket).Put([]byte(remoteID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// PendingDeletes returns the remote ids still waiting to be deleted.
func (s *Store) PendingDeletes() ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDeletesBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	return ids, err
}

// ClearPendingDelete forgets a relayed remote deletion.
func (s *Store) ClearPendingDelete(remoteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDeletesBucket).Delete([]byte(remoteID))
	})
}
