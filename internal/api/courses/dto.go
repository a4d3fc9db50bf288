package courses

import (
	"course-marketplace/internal/domain/courses"
	"course-marketplace/internal/domain/purchases"
)

type CourseSummaryDTO struct {
	ID              uint    `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Thumbnail       string  `json:"thumbnail"`
	Price           string  `json:"price"`
	DiscountPercent int     `json:"discountPercent"`
	Educator        string  `json:"educator,omitempty"`
	Students        int64   `json:"students"`
	Rating          float64 `json:"rating"`
	RatingCount     int64   `json:"ratingCount"`
}

type CourseDetailDTO struct {
	CourseSummaryDTO
	DurationMinutes int               `json:"durationMinutes"`
	Chapters        []courses.Chapter `json:"chapters"`
}

type courseRow struct {
	courses.Course
	EducatorName string
	Students     int64
	RatingAvg    float64
	RatingCount  int64
}

func toSummary(r courseRow, currency string) CourseSummaryDTO {
	return CourseSummaryDTO{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Thumbnail:       r.Thumbnail,
		Price:           r.Price.StringFixed(purchases.MinorUnitExponent(currency)),
		DiscountPercent: r.DiscountPercent,
		Educator:        r.EducatorName,
		Students:        r.Students,
		Rating:          r.RatingAvg,
		RatingCount:     r.RatingCount,
	}
}
