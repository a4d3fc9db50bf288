package courses

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Course struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Title           string          `gorm:"not null" json:"title"`
	Description     string          `json:"description"`
	Thumbnail       string          `json:"thumbnail"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	DiscountPercent int             `gorm:"not null;default:0" json:"discount_percent"`
	IsPublished     bool            `gorm:"not null;default:false;index" json:"is_published"`
	EducatorID      *uint           `gorm:"index" json:"educator_id,omitempty"`

	Content datatypes.JSONType[[]Chapter] `json:"content"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Chapter struct {
	ID       string    `json:"id"`
	Order    int       `json:"order"`
	Title    string    `json:"title"`
	Lectures []Lecture `json:"lectures"`
}

type Lecture struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	URL             string `json:"url"`
	IsPreviewFree   bool   `json:"is_preview_free"`
	Order           int    `json:"order"`
}

// Rating is one user's score for a course; a user has at most one.
type Rating struct {
	CourseID  uint      `gorm:"primaryKey;autoIncrement:false" json:"course_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Rating) TableName() string { return "course_ratings" }
