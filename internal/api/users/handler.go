package users

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"course-marketplace/internal/domain/courses"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/progress"
	"course-marketplace/internal/domain/users"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Handler struct {
	DB  *gorm.DB
	Log *slog.Logger
}

func mustUserID(c *gin.Context) (uint, bool) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) isEnrolled(db *gorm.DB, userID, courseID uint) (bool, error) {
	var n int64
	err := db.Model(&enrollments.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error
	return n > 0, err
}

func (h *Handler) internal(c *gin.Context, msg string, err error) {
	h.Log.Error(msg, slog.String("path", c.FullPath()), slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
}

// GET /user/data
func (h *Handler) GetUserData(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var u users.User
	err := h.DB.WithContext(c.Request.Context()).First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User Not Found"})
		return
	}
	if err != nil {
		h.internal(c, "load user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": UserDTO{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		ImageURL:     u.ImageURL,
		Role:         u.Role,
		AuthProvider: u.AuthProvider,
		CreatedAt:    u.CreatedAt,
	}})
}

// GET /user/enrolled-courses
func (h *Handler) GetEnrolledCourses(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var rows []struct {
		ID         uint
		Title      string
		Thumbnail  string
		EnrolledAt time.Time
	}
	if err := h.DB.WithContext(c.Request.Context()).
		Table("enrollments").
		Select("courses.id, courses.title, courses.thumbnail, enrollments.created_at AS enrolled_at").
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("enrollments.user_id = ?", userID).
		Order("enrollments.created_at DESC").
		Scan(&rows).Error; err != nil {
		h.internal(c, "load enrolled courses", err)
		return
	}

	out := make([]EnrolledCourseDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, EnrolledCourseDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "enrolledCourses": out})
}

// POST /user/update-course-progress
func (h *Handler) UpdateCourseProgress(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var body struct {
		CourseID  uint   `json:"courseId"`
		LectureID string `json:"lectureId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CourseID == 0 || body.LectureID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid Details"})
		return
	}

	db := h.DB.WithContext(c.Request.Context())

	enrolled, err := h.isEnrolled(db, userID, body.CourseID)
	if err != nil {
		h.internal(c, "check enrollment", err)
		return
	}
	if !enrolled {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "User has not purchased this course."})
		return
	}

	var course courses.Course
	if err := db.Select("id", "content").First(&course, body.CourseID).Error; err != nil {
		h.internal(c, "load course", err)
		return
	}
	if !courses.HasLecture(course.Content.Data(), body.LectureID) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Lecture not found"})
		return
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&progress.LectureCompletion{
		UserID:    userID,
		CourseID:  body.CourseID,
		LectureID: body.LectureID,
	})
	if res.Error != nil {
		h.internal(c, "save progress", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Lecture Already Completed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Progress Updated"})
}

// POST /user/get-course-progress
func (h *Handler) GetCourseProgress(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var body struct {
		CourseID uint `json:"courseId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CourseID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "courseId missing or invalid"})
		return
	}

	var lectures []string
	if err := h.DB.WithContext(c.Request.Context()).
		Model(&progress.LectureCompletion{}).
		Where("user_id = ? AND course_id = ?", userID, body.CourseID).
		Order("created_at ASC").
		Pluck("lecture_id", &lectures).Error; err != nil {
		h.internal(c, "load progress", err)
		return
	}
	if lectures == nil {
		lectures = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "progressData": ProgressDTO{
		CourseID:         body.CourseID,
		LectureCompleted: lectures,
	}})
}

// POST /user/add-rating
func (h *Handler) AddRating(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var body struct {
		CourseID uint `json:"courseId"`
		Rating   int  `json:"rating"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CourseID == 0 || body.Rating < 1 || body.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid Details"})
		return
	}

	db := h.DB.WithContext(c.Request.Context())

	var n int64
	if err := db.Model(&courses.Course{}).Where("id = ?", body.CourseID).Count(&n).Error; err != nil {
		h.internal(c, "load course", err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Course not found."})
		return
	}

	enrolled, err := h.isEnrolled(db, userID, body.CourseID)
	if err != nil {
		h.internal(c, "check enrollment", err)
		return
	}
	if !enrolled {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "User has not purchased this course."})
		return
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
	}).Create(&courses.Rating{
		CourseID: body.CourseID,
		UserID:   userID,
		Rating:   body.Rating,
	}).Error; err != nil {
		h.internal(c, "save rating", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Rating added"})
}
