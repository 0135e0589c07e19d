package models

import "time"

// ProcessedEvent records a processor notification that has been fully
// handled. Existence of a row is the sole idempotency signal: handlers
// insert it only after all side effects committed, and the unique event id
// makes concurrent deliveries race safely at the database.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(191);not null;index:ux_processed_events_event,unique" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON string    `gorm:"type:longtext" json:"payload_json"`
	ProcessedAt time.Time `gorm:"autoCreateTime;index" json:"processed_at"`
}
