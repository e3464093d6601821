package domain

import "time"

// Idempotency remembers which course a POST /courses with a given
// Idempotency-Key produced, so a retried request replays that result instead
// of attempting a second insert.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_key"`
	CourseID  uint      `gorm:"not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
