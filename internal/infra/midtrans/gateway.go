package midtrans

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"course-marketplace/internal/domain/payments"

	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

const (
	ProviderName = "midtrans"
	// Currency is the only currency Snap charges in.
	Currency = "idr"
)

// Gateway uses Snap for checkout and the Core API for status lookups. The
// Midtrans order id is the purchase id, so the session ref is the purchase id
// as well.
type Gateway struct {
	snap snap.Client
	core coreapi.Client
}

func NewGateway(serverKey string, production bool) *Gateway {
	env := mt.Sandbox
	if production {
		env = mt.Production
	}
	g := &Gateway{}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *Gateway) Name() string { return ProviderName }

func (g *Gateway) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	gross, err := grossAmount(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	sreq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  req.PurchaseID,
			GrossAmt: gross,
		},
		Items: &[]mt.ItemDetails{
			{
				ID:    fmt.Sprintf("course-%d", req.CourseID),
				Name:  truncate(req.Title, 50),
				Price: gross,
				Qty:   1,
			},
		},
		Callbacks: &snap.Callbacks{Finish: req.SuccessURL + "?session_id=" + url.QueryEscape(req.PurchaseID)},
	}
	if req.CustomerEmail != "" {
		sreq.CustomerDetail = &mt.CustomerDetails{Email: req.CustomerEmail}
	}

	resp, err := call(ctx, func() (*snap.Response, *mt.Error) {
		return g.snap.CreateTransaction(sreq)
	})
	if err != nil {
		return nil, fmt.Errorf("create snap transaction: %w", err)
	}
	return &payments.Session{
		Provider:   ProviderName,
		Ref:        req.PurchaseID,
		URL:        resp.RedirectURL,
		PurchaseID: req.PurchaseID,
		State:      payments.StateUnpaid,
	}, nil
}

func (g *Gateway) GetSession(ctx context.Context, ref string) (*payments.Session, error) {
	resp, err := call(ctx, func() (*coreapi.TransactionStatusResponse, *mt.Error) {
		return g.core.CheckTransaction(ref)
	})
	if err != nil {
		if me, ok := err.(*mt.Error); ok && me.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", payments.ErrSessionNotFound, ref)
		}
		return nil, fmt.Errorf("check transaction %s: %w", ref, err)
	}
	if resp.StatusCode == "404" {
		return nil, fmt.Errorf("%w: %s", payments.ErrSessionNotFound, ref)
	}
	return &payments.Session{
		Provider:   ProviderName,
		Ref:        ref,
		PurchaseID: resp.OrderID,
		State:      StateFromTransaction(resp.TransactionStatus, resp.FraudStatus),
	}, nil
}

// grossAmount converts to the whole-rupiah integer Snap charges. Anything that
// would be charged differently from what the purchase records is refused.
func grossAmount(amount decimal.Decimal, currency string) (int64, error) {
	if !strings.EqualFold(currency, Currency) {
		return 0, fmt.Errorf("midtrans charges %s only, got %q", Currency, currency)
	}
	if !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("midtrans amount %s has a fractional part", amount.String())
	}
	return amount.IntPart(), nil
}

// call runs a blocking SDK call and gives up when ctx is done. The SDK takes
// no context, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, *mt.Error)) (T, error) {
	type result struct {
		v   T
		err *mt.Error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.v, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
