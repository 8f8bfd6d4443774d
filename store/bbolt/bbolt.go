// Package bbolt provides an embedded, single-node session record store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/procuregov/authcore/session"
	"go.etcd.io/bbolt"
)

var recordsBucket = []byte("session_records")

var _ session.RecordStore = (*Store)(nil)

// Store implements session.RecordStore on a BBolt database. Records are
// JSON documents keyed by session id.
type Store struct {
	db *bbolt.DB
}

type recordDoc struct {
	PrincipalID string    `json:"principal_id"`
	RefreshHash []byte    `json:"refresh_hash"`
	SourceIP    string    `json:"source_ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// New returns a Store backed by db, creating the bucket if needed.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt: failed to create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt: failed to open database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PersistSessionRecord(_ context.Context, rec session.Record) error {
	data, err := json.Marshal(recordDoc{
		PrincipalID: rec.PrincipalID,
		RefreshHash: rec.RefreshHash[:],
		SourceIP:    rec.SourceIP,
		UserAgent:   rec.UserAgent,
		CreatedAt:   rec.CreatedAt.UTC(),
		ExpiresAt:   rec.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("bbolt: failed to encode session record: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(rec.SessionID), data)
	})
	if err != nil {
		return fmt.Errorf("bbolt: failed to save session record: %w", err)
	}
	return nil
}

func (s *Store) FindSessionRecord(_ context.Context, sessionID string) (session.Record, error) {
	var rec session.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = loadRecord(tx.Bucket(recordsBucket), sessionID)
		return err
	})
	if err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

func (s *Store) DeleteSessionRecord(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("bbolt: failed to delete session record: %w", err)
	}
	return nil
}

// SwapRefreshHash runs inside a single write transaction, which bbolt
// serializes.
func (s *Store) SwapRefreshHash(_ context.Context, sessionID string, current, next [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		rec, err := loadRecord(b, sessionID)
		if err != nil {
			return err
		}
		if rec.RefreshHash != current {
			return session.ErrRefreshHashMismatch
		}
		rec.RefreshHash = next
		data, err := json.Marshal(recordDoc{
			PrincipalID: rec.PrincipalID,
			RefreshHash: next[:],
			SourceIP:    rec.SourceIP,
			UserAgent:   rec.UserAgent,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("bbolt: failed to encode session record: %w", err)
		}
		return b.Put([]byte(sessionID), data)
	})
}

func loadRecord(b *bbolt.Bucket, sessionID string) (session.Record, error) {
	data := b.Get([]byte(sessionID))
	if data == nil {
		return session.Record{}, session.ErrRecordNotFound
	}
	var doc recordDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return session.Record{}, fmt.Errorf("bbolt: corrupt session record %s: %w", sessionID, err)
	}
	if len(doc.RefreshHash) != 32 {
		return session.Record{}, fmt.Errorf("bbolt: session record %s has a %d-byte refresh hash", sessionID, len(doc.RefreshHash))
	}
	rec := session.Record{
		SessionID:   sessionID,
		PrincipalID: doc.PrincipalID,
		SourceIP:    doc.SourceIP,
		UserAgent:   doc.UserAgent,
		CreatedAt:   doc.CreatedAt,
		ExpiresAt:   doc.ExpiresAt,
	}
	copy(rec.RefreshHash[:], doc.RefreshHash)
	return rec, nil
}
