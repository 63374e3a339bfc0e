package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/secrets"
)

// SenderRepository manages sender account records. SMTP passwords are
// sealed before they touch disk and are only recoverable through Secret.
type SenderRepository struct {
	db  *bolt.DB
	box *secrets.Box
}

// Create stores a new sender; secret is the plaintext SMTP password
func (r *SenderRepository) Create(sender *models.Sender, secret string) error {
	if sender.ID == "" {
		sender.ID = uuid.New().String()
	}
	sender.CreatedAt = time.Now()
	sender.UpdatedAt = sender.CreatedAt

	if secret != "" {
		sealed, err := r.box.Seal([]byte(secret))
		if err != nil {
			return fmt.Errorf("failed to seal sender secret: %w", err)
		}
		sender.SecretSealed = sealed
	}

	return r.put(sender)
}

// Update replaces an existing sender record; an empty secret keeps the
// stored one
func (r *SenderRepository) Update(sender *models.Sender, secret string) error {
	existing, err := r.GetByID(sender.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("sender %s not found", sender.ID)
	}

	sender.CreatedAt = existing.CreatedAt
	sender.UpdatedAt = time.Now()
	sender.SecretSealed = existing.SecretSealed

	if secret != "" {
		sealed, err := r.box.Seal([]byte(secret))
		if err != nil {
			return fmt.Errorf("failed to seal sender secret: %w", err)
		}
		sender.SecretSealed = sealed
	}

	return r.put(sender)
}

// storedSender carries the sealed secret alongside the public record; the
// model keeps the secret out of every JSON read path.
type storedSender struct {
	models.Sender
	SecretSealed []byte `json:"secret_sealed,omitempty"`
}

func marshalSender(s *models.Sender) ([]byte, error) {
	return json.Marshal(storedSender{Sender: *s, SecretSealed: s.SecretSealed})
}

func unmarshalSender(data []byte) (*models.Sender, error) {
	var stored storedSender
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	s := stored.Sender
	s.SecretSealed = stored.SecretSealed
	return &s, nil
}

// GetByID returns a sender by id, or nil when absent
func (r *SenderRepository) GetByID(id string) (*models.Sender, error) {
	var sender *models.Sender

	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSenders).Get([]byte(id))
		if data == nil {
			return nil
		}
		var err error
		sender, err = unmarshalSender(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// GetMany returns the senders for the given ids in input order. Missing ids
// produce an error naming the first missing one.
func (r *SenderRepository) GetMany(ids []string) ([]models.Sender, error) {
	senders := make([]models.Sender, 0, len(ids))

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSenders)
		for _, id := range ids {
			data := bucket.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("sender %s not found", id)
			}
			s, err := unmarshalSender(data)
			if err != nil {
				return err
			}
			senders = append(senders, *s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return senders, nil
}

// List returns senders sorted by creation time
func (r *SenderRepository) List(filter models.SenderListFilter) ([]models.Sender, error) {
	var senders []models.Sender

	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSenders).ForEach(func(k, v []byte) error {
			s, err := unmarshalSender(v)
			if err != nil {
				return err
			}
			if filter.EnabledOnly && !s.Enabled {
				return nil
			}
			senders = append(senders, *s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(senders, func(i, j int) bool {
		if !senders[i].CreatedAt.Equal(senders[j].CreatedAt) {
			return senders[i].CreatedAt.Before(senders[j].CreatedAt)
		}
		return senders[i].ID < senders[j].ID
	})

	return paginate(senders, filter.Limit, filter.Offset), nil
}

// Delete removes a sender record
func (r *SenderRepository) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSenders).Delete([]byte(id))
	})
}

// Secret returns the decrypted SMTP password for a sender
func (r *SenderRepository) Secret(sender *models.Sender) (string, error) {
	if len(sender.SecretSealed) == 0 {
		return "", nil
	}
	plain, err := r.box.Open(sender.SecretSealed)
	if err != nil {
		return "", fmt.Errorf("failed to open sender secret: %w", err)
	}
	return string(plain), nil
}

func (r *SenderRepository) put(sender *models.Sender) error {
	data, err := marshalSender(sender)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSenders).Put([]byte(sender.ID), data)
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
