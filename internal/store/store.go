// Package store persists sender, recipient and task records in a bbolt
// database. Records are JSON-encoded bucket values keyed by id. Per-job
// runtime state is deliberately not stored here; the scheduler owns it.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/secrets"
)

var (
	bucketSenders    = []byte("senders")
	bucketRecipients = []byte("recipients")
	bucketTasks      = []byte("tasks")
)

// Store is the persistent record store
type Store struct {
	db *bolt.DB

	Senders    *SenderRepository
	Recipients *RecipientRepository
	Tasks      *TaskRepository
}

// Open opens (creating if needed) the record store at path
func Open(path string, box *secrets.Box) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSenders, bucketRecipients, bucketTasks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	s := &Store{db: db}
	s.Senders = &SenderRepository{db: db, box: box}
	s.Recipients = &RecipientRepository{db: db}
	s.Tasks = &TaskRepository{db: db}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying bbolt database
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Sender resolves a sender record by id; missing records are an error so
// the store satisfies the scheduler's directory contract
func (s *Store) Sender(id string) (*models.Sender, error) {
	sender, err := s.Senders.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("sender %s not found", id)
	}
	return sender, nil
}

// Recipient resolves a recipient record by id
func (s *Store) Recipient(id string) (*models.Recipient, error) {
	rec, err := s.Recipients.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("recipient %s not found", id)
	}
	return rec, nil
}
