package users

import "time"

type UserDTO struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Role         string    `json:"role"`
	AuthProvider string    `json:"authProvider"`
	CreatedAt    time.Time `json:"createdAt"`
}

type EnrolledCourseDTO struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Thumbnail  string    `json:"thumbnail"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

type ProgressDTO struct {
	CourseID         uint     `json:"courseId"`
	LectureCompleted []string `json:"lectureCompleted"`
}
