package checkout_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/domain/outbox"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitConcurrentCallsTransitionOnce(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "race@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 20, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "cs_1")

	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res, err := c.Commit(context.Background(), p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if !res.AlreadyCompleted {
				winners++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, winners)
	assert.Equal(t, purchases.StatusCompleted, testutil.GetPurchase(t, db, p.ID).Status)
	assert.EqualValues(t, 1, testutil.CountEnrollments(t, db, user.ID, course.ID))
	assert.EqualValues(t, 1, testutil.CountOutbox(t, db))
}

func TestCommitReplayIsNoOp(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "replay@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "")

	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())

	first, err := c.Commit(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCompleted)

	completedAt := testutil.GetPurchase(t, db, p.ID).CompletedAt
	require.NotNil(t, completedAt)

	second, err := c.Commit(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)

	after := testutil.GetPurchase(t, db, p.ID)
	require.NotNil(t, after.CompletedAt)
	assert.True(t, completedAt.Equal(*after.CompletedAt))
	assert.EqualValues(t, 1, testutil.CountEnrollments(t, db, user.ID, course.ID))
	assert.EqualValues(t, 1, testutil.CountOutbox(t, db))
}

func TestCommitWritesEnrollmentEvent(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "event@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 20, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "")

	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())
	_, err := c.Commit(context.Background(), p.ID)
	require.NoError(t, err)

	var msg outbox.Message
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, outbox.TypeEnrollmentCompleted, msg.Type)
	assert.Equal(t, p.ID, msg.Key)
	assert.Nil(t, msg.ProcessedAt)

	var ev outbox.EnrollmentCompleted
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, p.ID, ev.PurchaseID)
	assert.Equal(t, user.ID, ev.UserID)
	assert.Equal(t, course.ID, ev.CourseID)
	assert.Equal(t, "80.00", ev.Amount)
	assert.Equal(t, "usd", ev.Currency)
}

func TestCommitUnknownPurchase(t *testing.T) {
	db := testutil.OpenTestDB(t)
	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())

	_, err := c.Commit(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, checkout.ErrNotFound)
	assert.EqualValues(t, 0, testutil.CountOutbox(t, db))
}

func TestCommitFailedPurchaseIsInvalidState(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "failed@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusFailed, "")

	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())
	_, err := c.Commit(context.Background(), p.ID)
	require.ErrorIs(t, err, checkout.ErrInvalidState)

	assert.Equal(t, purchases.StatusFailed, testutil.GetPurchase(t, db, p.ID).Status)
	assert.EqualValues(t, 0, testutil.CountEnrollments(t, db, user.ID, course.ID))
}

func TestFail(t *testing.T) {
	db := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, db, "fail@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	pending := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "")
	completed := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusCompleted, "")

	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())
	ctx := context.Background()

	changed, err := c.Fail(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	got := testutil.GetPurchase(t, db, pending.ID)
	assert.Equal(t, purchases.StatusFailed, got.Status)
	assert.NotNil(t, got.FailedAt)

	changed, err = c.Fail(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = c.Fail(ctx, completed.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, purchases.StatusCompleted, testutil.GetPurchase(t, db, completed.ID).Status)

	_, err = c.Fail(ctx, "missing")
	require.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestCompletedIffEnrolled(t *testing.T) {
	db := testutil.OpenTestDB(t)
	c := checkout.NewCommitter(db, checkout.DefaultRetry, testutil.DiscardLogger())
	ctx := context.Background()

	course := testutil.CreateCourse(t, db, "10.00", 0, true)
	var all []*purchases.Purchase
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		u := testutil.CreateUser(t, db, email)
		p := testutil.CreatePurchase(t, db, u.ID, course.ID, purchases.StatusPending, "")
		all = append(all, p)
		switch i % 3 {
		case 0:
			_, err := c.Commit(ctx, p.ID)
			require.NoError(t, err)
		case 1:
			_, err := c.Fail(ctx, p.ID)
			require.NoError(t, err)
			_, err = c.Commit(ctx, p.ID)
			require.ErrorIs(t, err, checkout.ErrInvalidState)
		}
	}

	for _, p := range all {
		got := testutil.GetPurchase(t, db, p.ID)
		enrolled := testutil.CountEnrollments(t, db, got.UserID, got.CourseID) == 1
		assert.Equal(t, got.Status == purchases.StatusCompleted, enrolled, "purchase %s is %s", got.ID, got.Status)
	}
}
