package polymarket

import (
	"context"
	"strconv"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey         = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testExchange    = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	testNegRiskExch = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

type fakeClob struct {
	posted []PostOrderRequest
	result APIOrderResult
	order  APIOrder
	err    error
}

func (f *fakeClob) PostOrder(_ context.Context, req PostOrderRequest) (APIOrderResult, error) {
	f.posted = append(f.posted, req)
	return f.result, f.err
}

func (f *fakeClob) GetOrder(_ context.Context, id string) (APIOrder, error) {
	return f.order, f.err
}

func (f *fakeClob) APIKey() string { return "key-1" }

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKey, 137, testExchange, testNegRiskExch)
	require.NoError(t, err)
	return s
}

func buyYes(price, size string) domain.OrderRequest {
	return domain.OrderRequest{
		ClientID:   "c-1",
		Instrument: domain.Instrument{Venue: domain.VenuePolymarket, ID: "12345", Outcome: domain.OutcomeYes},
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeFAK,
		Price:      decimal.RequireFromString(price),
		Size:       decimal.RequireFromString(size),
	}
}

func TestPlaceOrderSignsFAKBuy(t *testing.T) {
	signer := testSigner(t)
	api := &fakeClob{result: APIOrderResult{Success: true, OrderID: "0xabc", Status: "matched", MakingAmount: "4.2", TakingAmount: "10"}}
	a := NewOrderAdapter(api, signer)
	a.salt = func() int64 { return 42 }

	ack, err := a.PlaceOrder(context.Background(), buyYes("0.42", "10"))
	require.NoError(t, err)
	require.Len(t, api.posted, 1)

	req := api.posted[0]
	assert.Equal(t, "FAK", req.OrderType)
	assert.Equal(t, "key-1", req.Owner)
	assert.Equal(t, "BUY", req.Order.Side)
	assert.Equal(t, "4200000", req.Order.MakerAmount)
	assert.Equal(t, "10000000", req.Order.TakerAmount)
	assert.Equal(t, int64(42), req.Order.Salt)

	assert.Equal(t, signer.Address(), signedBy(t, signer, req.Order, false))

	assert.Equal(t, "0xabc", ack.OrderID)
	assert.Equal(t, domain.OrderStatusFilled, ack.Status)
	assert.True(t, ack.FilledSize.Equal(decimal.NewFromInt(10)))
	assert.True(t, ack.FilledPrice.Equal(decimal.RequireFromString("0.42")))
}

// signedBy recovers the address behind order's signature over the digest
// for the chosen exchange.
func signedBy(t *testing.T, signer *crypto.Signer, order SignedOrder, negRisk bool) common.Address {
	t.Helper()
	digest, err := signer.OrderDigest(crypto.OrderPayload{
		Salt:        strconv.FormatInt(order.Salt, 10),
		Maker:       order.Maker,
		Signer:      order.Signer,
		Taker:       order.Taker,
		TokenID:     order.TokenID,
		MakerAmount: order.MakerAmount,
		TakerAmount: order.TakerAmount,
		Expiration:  order.Expiration,
		Nonce:       order.Nonce,
		FeeRateBps:  order.FeeRateBps,
	}, negRisk)
	require.NoError(t, err)
	addr, err := crypto.RecoverAddress(digest, order.Signature)
	require.NoError(t, err)
	return addr
}

func TestPlaceOrderSignsForNegRiskExchange(t *testing.T) {
	signer := testSigner(t)
	api := &fakeClob{result: APIOrderResult{Success: true, OrderID: "0xdef", Status: "live"}}
	a := NewOrderAdapter(api, signer)

	req := buyYes("0.42", "10")
	req.Instrument.NegRisk = true
	_, err := a.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, api.posted, 1)

	order := api.posted[0].Order
	assert.Equal(t, signer.Address(), signedBy(t, signer, order, true))
	assert.NotEqual(t, signer.Address(), signedBy(t, signer, order, false),
		"a standard-exchange digest must not verify a neg-risk order")
}

func TestPlaceOrderRejectsInvalidRequests(t *testing.T) {
	a := NewOrderAdapter(&fakeClob{}, testSigner(t))

	sell := buyYes("0.40", "5")
	sell.Side = domain.OrderSideSell
	kalshi := buyYes("0.40", "5")
	kalshi.Instrument.Venue = domain.VenueKalshi

	for name, req := range map[string]domain.OrderRequest{
		"sell":       sell,
		"venue":      kalshi,
		"dust size":  buyYes("0.40", "0.001"),
		"price high": buyYes("1.00", "5"),
	} {
		_, err := a.PlaceOrder(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidOrder, name)
	}
}

func TestToAckStatuses(t *testing.T) {
	assert.Equal(t, domain.OrderStatusPending, toAck(APIOrderResult{Status: "live"}).Status)
	assert.Equal(t, domain.OrderStatusPending, toAck(APIOrderResult{Status: "delayed"}).Status)
	assert.Equal(t, domain.OrderStatusCancelled, toAck(APIOrderResult{Status: "unmatched"}).Status)
}

func TestToFillStatuses(t *testing.T) {
	full := toFill(APIOrder{ID: "1", Status: "MATCHED", SizeMatched: "10", Price: "0.41"})
	assert.Equal(t, domain.OrderStatusFilled, full.Status)
	assert.True(t, full.FilledPrice.Equal(decimal.RequireFromString("0.41")))

	partial := toFill(APIOrder{ID: "2", Status: "CANCELED", SizeMatched: "3", Price: "0.41"})
	assert.Equal(t, domain.OrderStatusFilled, partial.Status)
	assert.True(t, partial.FilledSize.Equal(decimal.NewFromInt(3)))

	none := toFill(APIOrder{ID: "3", Status: "CANCELED", SizeMatched: "0"})
	assert.Equal(t, domain.OrderStatusCancelled, none.Status)
	assert.True(t, none.FilledPrice.IsZero())

	assert.Equal(t, domain.OrderStatusPending, toFill(APIOrder{Status: "LIVE"}).Status)
	assert.Equal(t, domain.OrderStatusRejected, toFill(APIOrder{Status: "WEIRD"}).Status)
}
