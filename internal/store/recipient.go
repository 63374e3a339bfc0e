package store

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/SubinY/email-sender/internal/models"
)

// RecipientRepository manages recipient records
type RecipientRepository struct {
	db *bolt.DB
}

// Create stores a new recipient
func (r *RecipientRepository) Create(rec *models.Recipient) error {
	if _, err := mail.ParseAddress(rec.Email); err != nil {
		return fmt.Errorf("invalid recipient email %q: %w", rec.Email, err)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now()
	return r.put(rec)
}

// GetByID returns a recipient by id, or nil when absent
func (r *RecipientRepository) GetByID(id string) (*models.Recipient, error) {
	var rec *models.Recipient

	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecipients).Get([]byte(id))
		if data == nil {
			return nil
		}
		rec = &models.Recipient{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns all recipients sorted by creation time
func (r *RecipientRepository) List() ([]models.Recipient, error) {
	return r.list(false)
}

// ListDeliverable returns recipients that are not blacklisted, sorted by
// creation time. This is the planning input population.
func (r *RecipientRepository) ListDeliverable() ([]models.Recipient, error) {
	return r.list(true)
}

func (r *RecipientRepository) list(deliverableOnly bool) ([]models.Recipient, error) {
	var recs []models.Recipient

	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecipients).ForEach(func(k, v []byte) error {
			var rec models.Recipient
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if deliverableOnly && rec.Blacklisted {
				return nil
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// SetBlacklisted flips the blacklist flag on a recipient
func (r *RecipientRepository) SetBlacklisted(id string, blacklisted bool) error {
	rec, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("recipient %s not found", id)
	}
	rec.Blacklisted = blacklisted
	return r.put(rec)
}

// Delete removes a recipient record
func (r *RecipientRepository) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecipients).Delete([]byte(id))
	})
}

// Import stores a batch of recipients, skipping entries with invalid
// addresses
func (r *RecipientRepository) Import(recs []models.Recipient) (*models.RecipientImportResult, error) {
	result := &models.RecipientImportResult{Total: len(recs)}
	now := time.Now()

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecipients)
		for i := range recs {
			if _, err := mail.ParseAddress(recs[i].Email); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("invalid email %q", recs[i].Email))
				continue
			}
			if recs[i].ID == "" {
				recs[i].ID = uuid.New().String()
			}
			recs[i].CreatedAt = now

			data, err := json.Marshal(recs[i])
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(recs[i].ID), data); err != nil {
				return err
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RecipientRepository) put(rec *models.Recipient) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecipients).Put([]byte(rec.ID), data)
	})
}
