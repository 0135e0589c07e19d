// Package ledger is the idempotency gate for inbound processor
// notifications. A notification is handled at most once: handlers check
// IsProcessed before any side effect and call MarkProcessed only after every
// side effect has committed. Concurrency between redeliveries is resolved by
// the unique event id at the database, not by in-process locks.
package ledger

import (
	"context"
	"errors"

	"github.com/MarcReynaud/MissionPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the ledger service.
type Repository interface {
	FindByEventID(eventID string) (*models.ProcessedEvent, error)
	InsertIfNotExists(event *models.ProcessedEvent) (bool, error)
}

// Service gates notification processing on the processed-events table.
type Service struct {
	repo Repository
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// IsProcessed reports whether the event has already been fully handled.
func (s *Service) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_ = ctx
	if eventID == "" {
		return false, errors.New("event_id is required")
	}
	_, err := s.repo.FindByEventID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event as handled. A duplicate insert means a
// concurrent delivery finished first; that is success, not an error.
func (s *Service) MarkProcessed(ctx context.Context, eventID, eventType, payloadJSON string) error {
	_ = ctx
	if eventID == "" {
		return errors.New("event_id is required")
	}
	_, err := s.repo.InsertIfNotExists(&models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		PayloadJSON: payloadJSON,
	})
	return err
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByEventID(eventID string) (*models.ProcessedEvent, error) {
	var ev models.ProcessedEvent
	err := r.db.Where("event_id = ?", eventID).First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) InsertIfNotExists(event *models.ProcessedEvent) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
