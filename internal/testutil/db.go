// Package testutil holds the in-memory store and fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"course-marketplace/internal/domain/courses"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/outbox"
	"course-marketplace/internal/domain/progress"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/domain/users"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB returns a fresh in-memory database with every model migrated.
// It holds a single connection, so concurrent callers are serialized the way
// row locks would serialize them in Postgres.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&users.User{},
		&courses.Course{},
		&courses.Rating{},
		&purchases.Purchase{},
		&enrollments.Enrollment{},
		&progress.LectureCompletion{},
		&outbox.Message{},
	))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, email string) *users.User {
	t.Helper()
	u := &users.User{Name: "Test User", Email: email, Role: users.RoleStudent, AuthProvider: "local"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateCourse(t *testing.T, db *gorm.DB, price string, discount int, published bool) *courses.Course {
	t.Helper()
	c := &courses.Course{
		Title:           fmt.Sprintf("Course %d", time.Now().UnixNano()),
		Price:           decimal.RequireFromString(price),
		DiscountPercent: discount,
		IsPublished:     published,
	}
	c.Content = datatypes.NewJSONType([]courses.Chapter{
		{
			ID:    "ch1",
			Order: 1,
			Title: "Intro",
			Lectures: []courses.Lecture{
				{ID: "l1", Title: "Welcome", DurationMinutes: 5, URL: "https://video/l1", IsPreviewFree: true, Order: 1},
				{ID: "l2", Title: "Deep dive", DurationMinutes: 20, URL: "https://video/l2", Order: 2},
			},
		},
	})
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreatePurchase inserts a purchase in the given status. A non-empty
// sessionRef is stored as the provider session.
func CreatePurchase(t *testing.T, db *gorm.DB, userID, courseID uint, status purchases.Status, sessionRef string) *purchases.Purchase {
	t.Helper()
	p := &purchases.Purchase{
		ID:       uuid.NewString(),
		UserID:   userID,
		CourseID: courseID,
		Amount:   decimal.RequireFromString("80.00"),
		Currency: "usd",
		Status:   status,
		Provider: "fake",
	}
	if sessionRef != "" {
		p.SessionRef = &sessionRef
	}
	now := time.Now().UTC()
	switch status {
	case purchases.StatusCompleted:
		p.CompletedAt = &now
	case purchases.StatusFailed:
		p.FailedAt = &now
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func GetPurchase(t *testing.T, db *gorm.DB, id string) purchases.Purchase {
	t.Helper()
	var p purchases.Purchase
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func CountEnrollments(t *testing.T, db *gorm.DB, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&enrollments.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error)
	return n
}

func CountOutbox(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&outbox.Message{}).Count(&n).Error)
	return n
}
