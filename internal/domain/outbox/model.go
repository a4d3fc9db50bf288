package outbox

import (
	"time"

	"gorm.io/datatypes"
)

const TypeEnrollmentCompleted = "enrollment.completed"

type Message struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	Type        string         `gorm:"size:64;not null" json:"type"`
	Key         string         `gorm:"size:64;not null" json:"key"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	ProcessedAt *time.Time     `gorm:"index" json:"processed_at,omitempty"`
}

func (Message) TableName() string { return "outbox_messages" }

// EnrollmentCompleted is the payload published once per completed purchase.
type EnrollmentCompleted struct {
	PurchaseID  string    `json:"purchaseId"`
	UserID      uint      `json:"userId"`
	CourseID    uint      `json:"courseId"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completedAt"`
}
