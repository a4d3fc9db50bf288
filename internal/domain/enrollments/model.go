package enrollments

import "time"

// Enrollment is the pair (user, course). The composite primary key makes the
// table a set: it is both the user's enrolled courses and the course's
// enrolled students, so the pair is always appended in one write.
type Enrollment struct {
	UserID     uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CourseID   uint      `gorm:"primaryKey;autoIncrement:false;index" json:"course_id"`
	PurchaseID string    `gorm:"size:36;not null" json:"purchase_id"`
	CreatedAt  time.Time `json:"created_at"`
}
