package polymarket

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdcUnit scales prices and share sizes to the 6-decimal on-chain amounts.
var usdcUnit = decimal.NewFromInt(1_000_000)

type clobAPI interface {
	PostOrder(ctx context.Context, req PostOrderRequest) (APIOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (APIOrder, error)
	APIKey() string
}

// OrderAdapter exposes CLOB order entry as a domain.VenueClient. Every
// order is an EIP-712 signed BUY of the outcome token, signed for the
// neg-risk exchange when the instrument trades there.
type OrderAdapter struct {
	api    clobAPI
	signer *crypto.Signer
	salt   func() int64
}

var _ domain.VenueClient = (*OrderAdapter)(nil)

// NewOrderAdapter wraps a CLOB client and the signer for its wallet.
func NewOrderAdapter(api clobAPI, signer *crypto.Signer) *OrderAdapter {
	return &OrderAdapter{
		api:    api,
		signer: signer,
		salt:   func() int64 { return rand.Int64N(1 << 53) },
	}
}

// Venue implements domain.VenueClient.
func (a *OrderAdapter) Venue() domain.Venue { return domain.VenuePolymarket }

// PlaceOrder implements domain.VenueClient.
func (a *OrderAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	signed, err := a.buildOrder(req)
	if err != nil {
		return domain.OrderAck{}, err
	}

	orderType := "FAK"
	switch req.Type {
	case domain.OrderTypeFOK:
		orderType = "FOK"
	case domain.OrderTypeGTC:
		orderType = "GTC"
	}

	res, err := a.api.PostOrder(ctx, PostOrderRequest{
		Order:     signed,
		Owner:     a.api.APIKey(),
		OrderType: orderType,
	})
	if err != nil {
		return domain.OrderAck{}, err
	}
	return toAck(res), nil
}

// OrderStatus implements domain.VenueClient.
func (a *OrderAdapter) OrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error) {
	order, err := a.api.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	return toFill(order), nil
}

func (a *OrderAdapter) buildOrder(req domain.OrderRequest) (SignedOrder, error) {
	if req.Instrument.Venue != domain.VenuePolymarket {
		return SignedOrder{}, fmt.Errorf("polymarket: instrument %s: %w", req.Instrument.Key(), domain.ErrInvalidOrder)
	}
	if req.Side != domain.OrderSideBuy {
		return SignedOrder{}, fmt.Errorf("polymarket: only buy orders are supported: %w", domain.ErrInvalidOrder)
	}
	size := req.Size.RoundFloor(2)
	if !size.IsPositive() {
		return SignedOrder{}, fmt.Errorf("polymarket: size %s: %w", req.Size, domain.ErrInvalidOrder)
	}
	price := req.Price.RoundCeil(2)
	if price.LessThan(decimal.RequireFromString("0.01")) || price.GreaterThan(decimal.RequireFromString("0.99")) {
		return SignedOrder{}, fmt.Errorf("polymarket: price %s outside tick range: %w", req.Price, domain.ErrInvalidOrder)
	}

	maker := a.signer.Address().Hex()
	salt := a.salt()
	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         maker,
		Signer:        maker,
		Taker:         zeroAddress,
		TokenID:       req.Instrument.ID,
		MakerAmount:   price.Mul(size).Mul(usdcUnit).Truncate(0).String(),
		TakerAmount:   size.Mul(usdcUnit).Truncate(0).String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: 0,
	}
	sig, err := a.signer.SignOrder(payload, req.Instrument.NegRisk)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	return SignedOrder{
		Salt:          salt,
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       payload.TokenID,
		MakerAmount:   payload.MakerAmount,
		TakerAmount:   payload.TakerAmount,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          "BUY",
		SignatureType: payload.SignatureType,
		Signature:     sig,
	}, nil
}

// toAck maps a post-order response. For a BUY, makingAmount is USDC spent
// and takingAmount is shares received.
func toAck(res APIOrderResult) domain.OrderAck {
	ack := domain.OrderAck{
		OrderID:     res.OrderID,
		FilledSize:  decimal.Zero,
		FilledPrice: decimal.Zero,
	}
	making := parseDecimal(res.MakingAmount)
	taking := parseDecimal(res.TakingAmount)

	switch strings.ToLower(res.Status) {
	case "matched":
		ack.Status = domain.OrderStatusFilled
		ack.FilledSize = taking
		if taking.IsPositive() {
			ack.FilledPrice = making.Div(taking)
		}
	case "live", "delayed":
		ack.Status = domain.OrderStatusPending
	case "unmatched":
		ack.Status = domain.OrderStatusCancelled
	default:
		ack.Status = domain.OrderStatusPending
	}
	return ack
}

func toFill(o APIOrder) domain.OrderFill {
	matched := parseDecimal(o.SizeMatched)
	fill := domain.OrderFill{
		OrderID:     o.ID,
		FilledSize:  matched,
		FilledPrice: decimal.Zero,
		Fee:         decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	}
	if matched.IsPositive() {
		fill.FilledPrice = parseDecimal(o.Price)
	}

	switch strings.ToUpper(o.Status) {
	case "MATCHED":
		fill.Status = domain.OrderStatusFilled
	case "CANCELED", "CANCELLED", "CANCELED_MARKET_RESOLVED":
		if matched.IsPositive() {
			fill.Status = domain.OrderStatusFilled
		} else {
			fill.Status = domain.OrderStatusCancelled
			fill.Reason = "not filled before cancel"
		}
	case "LIVE", "DELAYED", "UNMATCHED":
		fill.Status = domain.OrderStatusPending
	default:
		fill.Status = domain.OrderStatusRejected
		fill.Reason = "unknown status " + o.Status
	}
	return fill
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
