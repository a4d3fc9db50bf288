package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"course-marketplace/internal/domain/payments"
)

// StateFromTransaction maps a Midtrans transaction_status. Card captures only
// count as paid once fraud screening accepted them. A denied attempt leaves
// the order open because the buyer can retry it with another payment method.
func StateFromTransaction(transactionStatus, fraudStatus string) payments.State {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return payments.StatePaid
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "accept", "":
			return payments.StatePaid
		default:
			return payments.StateUnpaid
		}
	case "expire":
		return payments.StateExpired
	case "cancel", "failure":
		return payments.StateFailed
	default:
		return payments.StateUnpaid
	}
}

// Notification is the HTTP notification body Midtrans posts.
type Notification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// Signature computes SHA512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

// VerifySignature reports whether the notification was signed with serverKey.
func (n Notification) VerifySignature(serverKey string) bool {
	if n.SignatureKey == "" || serverKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	got := strings.ToLower(n.SignatureKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Session converts the notification into the provider-neutral session.
// transaction_status is not covered by the signature, so a paid state is only
// taken when the signed status_code is 200 as well.
func (n Notification) Session() *payments.Session {
	state := StateFromTransaction(n.TransactionStatus, n.FraudStatus)
	if state == payments.StatePaid && n.StatusCode != "200" {
		state = payments.StateUnpaid
	}
	return &payments.Session{
		Provider:   ProviderName,
		Ref:        n.OrderID,
		PurchaseID: n.OrderID,
		State:      state,
	}
}
