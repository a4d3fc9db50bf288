package courses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"course-marketplace/internal/domain/courses"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	DB       *gorm.DB
	Currency string
	Log      *slog.Logger
}

func (h *Handler) courseQuery(db *gorm.DB) *gorm.DB {
	return db.Table("courses").
		Select(`courses.*, users.name AS educator_name,
			(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = courses.id) AS students,
			(SELECT CAST(COALESCE(AVG(r.rating), 0) AS FLOAT) FROM course_ratings r WHERE r.course_id = courses.id) AS rating_avg,
			(SELECT COUNT(*) FROM course_ratings r WHERE r.course_id = courses.id) AS rating_count`).
		Joins("LEFT JOIN users ON users.id = courses.educator_id").
		Where("courses.is_published = ?", true)
}

// GET /courses
func (h *Handler) ListCourses(c *gin.Context) {
	var rows []courseRow
	if err := h.courseQuery(h.DB.WithContext(c.Request.Context())).
		Order("courses.created_at DESC").
		Find(&rows).Error; err != nil {
		h.Log.Error("list courses", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load courses"})
		return
	}

	out := make([]CourseSummaryDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSummary(r, h.Currency))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "courses": out})
}

// GET /courses/:id
//
// Lectures that are not free previews are returned without their URL.
func (h *Handler) GetCourse(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid course id"})
		return
	}

	var row courseRow
	err = h.courseQuery(h.DB.WithContext(c.Request.Context())).
		Where("courses.id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Course not found"})
		return
	}
	if err != nil {
		h.Log.Error("get course", slog.Uint64("course_id", id), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load course"})
		return
	}

	chapters := row.Content.Data()
	c.JSON(http.StatusOK, gin.H{"success": true, "course": CourseDetailDTO{
		CourseSummaryDTO: toSummary(row, h.Currency),
		DurationMinutes:  courses.TotalDurationMinutes(chapters),
		Chapters:         courses.PreviewChapters(chapters),
	}})
}
