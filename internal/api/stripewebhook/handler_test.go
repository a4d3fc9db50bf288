package stripewebhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75/webhook"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret"

func setup(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenTestDB(t)
	log := testutil.DiscardLogger()
	settler := checkout.NewSettler(
		checkout.NewResolver(db, testutil.NewFakeGateway(), time.Second, log),
		checkout.NewCommitter(db, checkout.DefaultRetry, log),
		2*time.Second, 5*time.Second, log)

	h := &Handler{Settler: settler, WebhookSecret: testSecret, Log: log}
	r := gin.New()
	r.POST("/webhook", h.StripeWebhook)
	return r, db
}

func sessionEvent(eventType, sessionID, paymentStatus, status, purchaseID string) []byte {
	metadata := map[string]string{}
	if purchaseID != "" {
		metadata["purchaseId"] = purchaseID
	}
	body, _ := json.Marshal(map[string]any{
		"id":     "evt_" + sessionID,
		"object": "event",
		"type":   eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": paymentStatus,
				"status":         status,
				"metadata":       metadata,
			},
		},
	})
	return body
}

func post(r *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func status(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return fmt.Sprint(body["status"])
}

func TestPaidSessionEnrolls(t *testing.T) {
	r, db := setup(t)
	user := testutil.CreateUser(t, db, "hook@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 20, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "cs_1")

	payload := sessionEvent("checkout.session.completed", "cs_1", "paid", "complete", p.ID)

	w := post(r, payload, sign(payload, testSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", status(t, w))
	assert.Equal(t, purchases.StatusCompleted, testutil.GetPurchase(t, db, p.ID).Status)
	assert.EqualValues(t, 1, testutil.CountEnrollments(t, db, user.ID, course.ID))

	// Stripe redelivers the same event
	w = post(r, payload, sign(payload, testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_completed", status(t, w))
	assert.EqualValues(t, 1, testutil.CountEnrollments(t, db, user.ID, course.ID))
	assert.EqualValues(t, 1, testutil.CountOutbox(t, db))
}

func TestInvalidSignatureNeverTouchesState(t *testing.T) {
	r, db := setup(t)
	user := testutil.CreateUser(t, db, "forged@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	p := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "cs_1")

	payload := sessionEvent("checkout.session.completed", "cs_1", "paid", "complete", p.ID)

	for name, sig := range map[string]string{
		"wrong secret": sign(payload, "whsec_attacker"),
		"missing":      "",
		"garbage":      "t=1,v1=deadbeef",
	} {
		t.Run(name, func(t *testing.T) {
			w := post(r, payload, sig)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	assert.Equal(t, purchases.StatusPending, testutil.GetPurchase(t, db, p.ID).Status)
	assert.EqualValues(t, 0, testutil.CountEnrollments(t, db, user.ID, course.ID))
	assert.EqualValues(t, 0, testutil.CountOutbox(t, db))
}

func TestMalformedPayloadIsBadRequest(t *testing.T) {
	r, _ := setup(t)
	payload := []byte(`{"id": "evt_1", "type":`)

	w := post(r, payload, sign(payload, testSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnpaidOutcomesAreAcknowledged(t *testing.T) {
	r, db := setup(t)
	user := testutil.CreateUser(t, db, "async@example.com")
	course := testutil.CreateCourse(t, db, "100.00", 0, true)
	delayed := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "cs_delayed")
	expired := testutil.CreatePurchase(t, db, user.ID, course.ID, purchases.StatusPending, "cs_expired")

	payload := sessionEvent("checkout.session.completed", "cs_delayed", "unpaid", "complete", delayed.ID)
	w := post(r, payload, sign(payload, testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_paid", status(t, w))
	assert.Equal(t, purchases.StatusPending, testutil.GetPurchase(t, db, delayed.ID).Status)

	payload = sessionEvent("checkout.session.expired", "cs_expired", "unpaid", "expired", expired.ID)
	w = post(r, payload, sign(payload, testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", status(t, w))
	assert.Equal(t, purchases.StatusFailed, testutil.GetPurchase(t, db, expired.ID).Status)

	payload = []byte(`{"id":"evt_x","object":"event","type":"customer.created","data":{"object":{}}}`)
	w = post(r, payload, sign(payload, testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", status(t, w))

	assert.EqualValues(t, 0, testutil.CountEnrollments(t, db, user.ID, course.ID))
}

func TestPaidSessionForUnknownPurchaseIsRejectedWith200(t *testing.T) {
	r, db := setup(t)

	for _, purchaseID := range []string{"ghost", ""} {
		payload := sessionEvent("checkout.session.completed", "cs_ghost", "paid", "complete", purchaseID)
		w := post(r, payload, sign(payload, testSecret))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "rejected", status(t, w))
	}
	assert.EqualValues(t, 0, testutil.CountOutbox(t, db))
}
