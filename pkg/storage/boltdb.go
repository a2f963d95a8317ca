package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/inkleaf/notesync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMappings     = []byte("path_mappings")    // path -> LocalMapping
	bucketMappingsByID = []byte("mappings_by_note")  // note_id -> path
	bucketNotes        = []byte("notes")             // note_id -> Note
	bucketMeta         = []byte("meta")              // flat key/value
	bucketAuth         = []byte("auth")              // access/refresh/expires_at
)

const (
	authKeyAccess    = "access_token"
	authKeyRefresh   = "refresh_token"
	authKeyExpiresAt = "expires_at"
)

// BoltDB implements Index using an embedded bbolt database, one file per
// linked local workspace.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if absent) the index database under dataDir.
func NewBoltDB(dataDir, fileName string) (*BoltDB, error) {
	if fileName == "" {
		fileName = "notesync.db"
	}
	dbPath := filepath.Join(dataDir, fileName)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMappings, bucketMappingsByID, bucketNotes, bucketMeta, bucketAuth} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDB{db: db}, nil
}

func (s *BoltDB) Close() error {
	return s.db.Close()
}

// PutMapping upserts a mapping, keeping the note_id secondary index in
// sync within the same transaction.
func (s *BoltDB) PutMapping(m types.LocalMapping) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putMapping(tx, m)
	})
}

func putMapping(tx *bolt.Tx, m types.LocalMapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	if err := tx.Bucket(bucketMappings).Put([]byte(m.Path), data); err != nil {
		return err
	}
	return tx.Bucket(bucketMappingsByID).Put([]byte(m.NoteID), []byte(m.Path))
}

func (s *BoltDB) GetMappingByPath(path string) (types.LocalMapping, bool, error) {
	var m types.LocalMapping
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMappings).Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &m)
	})
	return m, found, err
}

func (s *BoltDB) GetMappingByNoteID(noteID string) (types.LocalMapping, bool, error) {
	var m types.LocalMapping
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		path := tx.Bucket(bucketMappingsByID).Get([]byte(noteID))
		if path == nil {
			return nil
		}
		data := tx.Bucket(bucketMappings).Get(path)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &m)
	})
	return m, found, err
}

func (s *BoltDB) ListMappings() ([]types.LocalMapping, error) {
	var out []types.LocalMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMappings).ForEach(func(k, v []byte) error {
			var m types.LocalMapping
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

func (s *BoltDB) DeleteMapping(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMappings).Get([]byte(path))
		if data == nil {
			return nil
		}
		var m types.LocalMapping
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMappings).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(bucketMappingsByID).Delete([]byte(m.NoteID))
	})
}

// MoveMapping relocates a mapping in one transaction: the old path key is
// removed, the new path key gets the same note_id/version/hash, and the
// secondary index is repointed. A rename that touched only the path
// mapping and left the note_id index stale would make the next
// reconciliation cycle treat the note as both deleted and newly created.
func (s *BoltDB) MoveMapping(oldPath, newPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMappings).Get([]byte(oldPath))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrMappingNotFound, oldPath)
		}
		var m types.LocalMapping
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMappings).Delete([]byte(oldPath)); err != nil {
			return err
		}
		m.Path = newPath
		return putMapping(tx, m)
	})
}

func (s *BoltDB) ClearMappings() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketMappings); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket(bucketMappingsByID); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketMappings); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketMappingsByID)
		return err
	})
}

func (s *BoltDB) PutNote(note types.Note) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(note)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNotes).Put([]byte(note.ID), data)
	})
}

func (s *BoltDB) GetNote(noteID string) (types.Note, bool, error) {
	var note types.Note
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNotes).Get([]byte(noteID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &note)
	})
	return note, found, err
}

func (s *BoltDB) DeleteNote(noteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotes).Delete([]byte(noteID))
	})
}

func (s *BoltDB) PutMeta(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

func (s *BoltDB) GetMeta(key string) (string, bool, error) {
	var value string
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		value = string(data)
		return nil
	})
	return value, found, err
}

func (s *BoltDB) PutTokens(access, refresh string, expiresAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		if err := b.Put([]byte(authKeyAccess), []byte(access)); err != nil {
			return err
		}
		if err := b.Put([]byte(authKeyRefresh), []byte(refresh)); err != nil {
			return err
		}
		return b.Put([]byte(authKeyExpiresAt), []byte(expiresAt.UTC().Format(time.RFC3339Nano)))
	})
}

func (s *BoltDB) GetTokens() (access, refresh string, expiresAt time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		a := b.Get([]byte(authKeyAccess))
		if a == nil {
			return nil
		}
		access = string(a)
		if r := b.Get([]byte(authKeyRefresh)); r != nil {
			refresh = string(r)
		}
		if e := b.Get([]byte(authKeyExpiresAt)); e != nil {
			t, parseErr := time.Parse(time.RFC3339Nano, string(e))
			if parseErr != nil {
				return fmt.Errorf("parse expires_at: %w", parseErr)
			}
			expiresAt = t
		}
		ok = true
		return nil
	})
	return access, refresh, expiresAt, ok, err
}

func (s *BoltDB) ClearTokens() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		for _, k := range []string{authKeyAccess, authKeyRefresh, authKeyExpiresAt} {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}
