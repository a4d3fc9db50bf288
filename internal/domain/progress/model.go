package progress

import "time"

// LectureCompletion marks one lecture as done for a user.
type LectureCompletion struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CourseID  uint      `gorm:"primaryKey;autoIncrement:false" json:"course_id"`
	LectureID string    `gorm:"primaryKey;size:64" json:"lecture_id"`
	CreatedAt time.Time `json:"completed_at"`
}
