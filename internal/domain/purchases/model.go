package purchases

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Purchase is one buy attempt. It is created pending and moves at most once,
// to completed or failed.
type Purchase struct {
	ID       string          `gorm:"primaryKey;size:36" json:"id"`
	CourseID uint            `gorm:"not null;index" json:"course_id"`
	UserID   uint            `gorm:"not null;index" json:"user_id"`
	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency string          `gorm:"size:8;not null" json:"currency"`
	Status   Status          `gorm:"size:16;not null;default:'pending';index" json:"status"`

	Provider   string  `gorm:"size:16" json:"provider,omitempty"`
	SessionRef *string `gorm:"column:session_ref;index" json:"session_ref,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
