package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookStore manages the failed-webhook dead-letter queue.
type WebhookStore struct {
	db *gorm.DB
}

func NewWebhookStore(db *gorm.DB) *WebhookStore { return &WebhookStore{db: db} }

// InsertFailed persists a webhook delivery that exhausted its retries.
func (s *WebhookStore) InsertFailed(url, eventType string, payload datatypes.JSON, attempts int) error {
	return s.db.Create(&FailedWebhook{
		ID:          uuid.NewString(),
		URL:         url,
		EventType:   eventType,
		Payload:     payload,
		LastAttempt: time.Now(),
		Attempts:    attempts,
	}).Error
}

// ListFailed returns every dead-lettered webhook awaiting replay.
func (s *WebhookStore) ListFailed() ([]FailedWebhook, error) {
	var out []FailedWebhook
	err := s.db.Find(&out).Error
	return out, err
}

// DeleteFailed removes a dead-lettered webhook after a successful replay.
func (s *WebhookStore) DeleteFailed(id string) error {
	return s.db.Where("id = ?", id).Delete(&FailedWebhook{}).Error
}
