package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"course-marketplace/internal/domain/courses"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRouter(db *gorm.DB, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handler{DB: db, Log: testutil.DiscardLogger()}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	r.GET("/user/data", h.GetUserData)
	r.GET("/user/enrolled-courses", h.GetEnrolledCourses)
	r.POST("/user/update-course-progress", h.UpdateCourseProgress)
	r.POST("/user/get-course-progress", h.GetCourseProgress)
	r.POST("/user/add-rating", h.AddRating)
	return r
}

func call(r *gin.Engine, method, path string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func enroll(t *testing.T, db *gorm.DB, userID, courseID uint) {
	t.Helper()
	require.NoError(t, db.Create(&enrollments.Enrollment{UserID: userID, CourseID: courseID, PurchaseID: "p"}).Error)
}

func TestUserDataAndEnrolledCourses(t *testing.T) {
	db := testutil.OpenTestDB(t)
	u := testutil.CreateUser(t, db, "me@example.com")
	course := testutil.CreateCourse(t, db, "10.00", 0, true)
	testutil.CreateCourse(t, db, "10.00", 0, true)
	enroll(t, db, u.ID, course.ID)

	r := newRouter(db, u.ID)

	code, body := call(r, http.MethodGet, "/user/data", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "me@example.com", body["user"].(map[string]any)["email"])

	code, body = call(r, http.MethodGet, "/user/enrolled-courses", nil)
	require.Equal(t, http.StatusOK, code)
	list := body["enrolledCourses"].([]any)
	require.Len(t, list, 1)
	assert.EqualValues(t, course.ID, list[0].(map[string]any)["id"])

	code, _ = call(newRouter(db, 0), http.MethodGet, "/user/data", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(newRouter(db, 999), http.MethodGet, "/user/data", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCourseProgress(t *testing.T) {
	db := testutil.OpenTestDB(t)
	u := testutil.CreateUser(t, db, "me@example.com")
	course := testutil.CreateCourse(t, db, "10.00", 0, true)
	r := newRouter(db, u.ID)

	code, _ := call(r, http.MethodPost, "/user/update-course-progress", gin.H{"courseId": course.ID, "lectureId": "l1"})
	assert.Equal(t, http.StatusForbidden, code)

	enroll(t, db, u.ID, course.ID)

	code, body := call(r, http.MethodPost, "/user/update-course-progress", gin.H{"courseId": course.ID, "lectureId": "l1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Progress Updated", body["message"])

	code, body = call(r, http.MethodPost, "/user/update-course-progress", gin.H{"courseId": course.ID, "lectureId": "l1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Lecture Already Completed", body["message"])

	code, _ = call(r, http.MethodPost, "/user/update-course-progress", gin.H{"courseId": course.ID, "lectureId": "nope"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(r, http.MethodPost, "/user/update-course-progress", gin.H{"courseId": course.ID})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = call(r, http.MethodPost, "/user/get-course-progress", gin.H{"courseId": course.ID})
	require.Equal(t, http.StatusOK, code)
	progress := body["progressData"].(map[string]any)
	assert.Equal(t, []any{"l1"}, progress["lectureCompleted"])
}

func TestAddRating(t *testing.T) {
	db := testutil.OpenTestDB(t)
	u := testutil.CreateUser(t, db, "me@example.com")
	course := testutil.CreateCourse(t, db, "10.00", 0, true)
	r := newRouter(db, u.ID)

	code, _ := call(r, http.MethodPost, "/user/add-rating", gin.H{"courseId": course.ID, "rating": 6})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(r, http.MethodPost, "/user/add-rating", gin.H{"courseId": 9999, "rating": 4})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(r, http.MethodPost, "/user/add-rating", gin.H{"courseId": course.ID, "rating": 4})
	assert.Equal(t, http.StatusForbidden, code)

	enroll(t, db, u.ID, course.ID)

	code, _ = call(r, http.MethodPost, "/user/add-rating", gin.H{"courseId": course.ID, "rating": 4})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(r, http.MethodPost, "/user/add-rating", gin.H{"courseId": course.ID, "rating": 2})
	require.Equal(t, http.StatusOK, code)

	var ratings []courses.Rating
	require.NoError(t, db.Where("course_id = ?", course.ID).Find(&ratings).Error)
	require.Len(t, ratings, 1)
	assert.Equal(t, 2, ratings[0].Rating)
}
