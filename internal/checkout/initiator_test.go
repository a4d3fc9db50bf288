package checkout_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newInitiator(db *gorm.DB, gw *testutil.FakeGateway) *checkout.Initiator {
	return checkout.NewInitiator(db, gw, checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger()), checkout.InitiatorConfig{
		FrontendURL:     "https://shop.example/",
		Currency:        "usd",
		ProviderTimeout: time.Second,
	}, testutil.DiscardLogger())
}

func countPurchases(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&purchases.Purchase{}).Count(&n).Error)
	return n
}

func TestInitiateCreatesPendingPurchaseAndSession(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 20, true)
	gw := testutil.NewFakeGateway()

	res, err := newInitiator(db, gw).Initiate(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)

	p := testutil.GetPurchase(t, db, res.PurchaseID)
	assert.Equal(t, purchases.StatusPending, p.Status)
	assert.True(t, decimal.RequireFromString("80.00").Equal(p.Amount), "amount %s", p.Amount)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, course.ID, p.CourseID)
	require.NotNil(t, p.SessionRef)
	assert.Equal(t, "cs_fake_1", *p.SessionRef)

	require.Len(t, gw.Requests, 1)
	req := gw.Requests[0]
	assert.Equal(t, p.ID, req.PurchaseID)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	assert.True(t, decimal.RequireFromString("80").Equal(req.Amount))
	assert.Equal(t, "https://shop.example/loading/my-enrollments", req.SuccessURL)
	assert.Equal(t, fmt.Sprintf("https://shop.example/course/%d", course.ID), req.CancelURL)
}

func TestInitiateProviderFailureLeavesPurchasePending(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com")
	course := testutil.CreateCourse(t, db, "49.99", 0, true)
	gw := testutil.NewFakeGateway()
	gw.CreateErr = errors.New("stripe is down")

	_, err := newInitiator(db, gw).Initiate(context.Background(), user.ID, course.ID)
	require.ErrorIs(t, err, checkout.ErrExternalService)

	var all []purchases.Purchase
	require.NoError(t, db.Find(&all).Error)
	require.Len(t, all, 1)
	assert.Equal(t, purchases.StatusPending, all[0].Status)
	assert.Nil(t, all[0].SessionRef)
	// the purchase existed before the provider was asked
	require.Len(t, gw.Requests, 1)
	assert.Equal(t, all[0].ID, gw.Requests[0].PurchaseID)
}

func TestInitiateRejections(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "buyer@example.com")
	published := testutil.CreateCourse(t, db, "100.00", 0, true)
	draft := testutil.CreateCourse(t, db, "100.00", 0, false)
	gw := testutil.NewFakeGateway()
	in := newInitiator(db, gw)
	ctx := context.Background()

	_, err := in.Initiate(ctx, user.ID, 0)
	assert.ErrorIs(t, err, checkout.ErrValidation)

	_, err = in.Initiate(ctx, user.ID, 9999)
	assert.ErrorIs(t, err, checkout.ErrNotFound)

	_, err = in.Initiate(ctx, user.ID, draft.ID)
	assert.ErrorIs(t, err, checkout.ErrNotFound)

	_, err = in.Initiate(ctx, 9999, published.ID)
	assert.ErrorIs(t, err, checkout.ErrNotFound)

	assert.EqualValues(t, 0, countPurchases(t, db))
	assert.Empty(t, gw.Requests)
}

func TestInitiateAlreadyEnrolled(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "owner@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusCompleted, "")
	require.NoError(t, db.Create(&enrollments.Enrollment{UserID: user.ID, CourseID: course.ID, PurchaseID: p.ID}).Error)

	gw := testutil.NewFakeGateway()
	_, err := newInitiator(db, gw).Initiate(context.Background(), user.ID, course.ID)
	require.ErrorIs(t, err, checkout.ErrAlreadyEnrolled)
	assert.EqualValues(t, 1, countPurchases(t, db))
	assert.Empty(t, gw.Requests)
}

func TestInitiateFreeCourseEnrollsWithoutProvider(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "flow@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 100, true)
	gw := testutil.NewFakeGateway()

	res, err := newInitiator(db, gw).Initiate(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/my-enrollments", res.RedirectURL)
	assert.Empty(t, gw.Requests)

	p := testutil.GetPurchase(t, db, res.PurchaseID)
	assert.True(t, p.Amount.IsZero())
	assert.Equal(t, purchases.StatusCompleted, p.Status)
	assert.Equal(t, checkout.ProviderFree, p.Provider)
	assert.EqualValues(t, 1, testutil.CountEnrollments(t, db, user.ID, course.ID))

	_, err = newInitiator(db, gw).Initiate(context.Background(), user.ID, course.ID)
	require.ErrorIs(t, err, checkout.ErrAlreadyEnrolled)
}

func TestInitiateLogsErrorWhenSessionRefNotStored(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "ref@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	gw := testutil.NewFakeGateway()

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("fail_session_ref", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("disk full"))
	}))

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	in := checkout.NewInitiator(db, gw, checkout.NewCommitter(db, checkout.DefaultRetry, log), checkout.InitiatorConfig{
		FrontendURL:     "https://shop.example",
		Currency:        "usd",
		ProviderTimeout: time.Second,
	}, log)

	res, err := in.Initiate(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)
	assert.Nil(t, testutil.GetPurchase(t, db, res.PurchaseID).SessionRef)

	assert.Contains(t, buf.String(), `"level":"ERROR","msg":"failed to store session ref`)
}
