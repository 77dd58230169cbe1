// Package executor dispatches both legs of a permitted opportunity at once,
// waits for the venues to confirm, and reconciles the outcome into the risk
// state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var maxPrice = decimal.RequireFromString("0.99")

// Gate is the breaker surface the coordinator consults.
type Gate interface {
	Authorize(pairID string, size decimal.Decimal) (risk.Grant, error)
	RecordSuccess()
	RecordError() int
	CheckDailyLoss() bool
}

// Positions is the ledger surface the coordinator settles into.
type Positions interface {
	Settle(res risk.Reservation, a, b risk.LegFill) decimal.Decimal
	Release(res risk.Reservation)
}

// ExecutionRecorder persists execution records.
type ExecutionRecorder interface {
	Create(ctx context.Context, exec domain.ArbExecution) error
}

// Config controls execution.
type Config struct {
	// DryRun runs the whole pipeline but dispatches no orders.
	DryRun bool
	// Timeout bounds the wait for both legs' confirmations.
	Timeout time.Duration
	// PollInterval is the order status polling period.
	PollInterval time.Duration
	// Slippage is added to each leg's quoted price to make the limit
	// marketable.
	Slippage decimal.Decimal
}

// Coordinator executes opportunities as two-leg order sets. At most one
// order set per pair is outstanding at any time.
type Coordinator struct {
	cfg       Config
	venues    map[domain.Venue]domain.VenueClient
	gate      Gate
	positions Positions
	recorder  ExecutionRecorder
	events    domain.EventPublisher
	inflight  *InFlight
	logger    *slog.Logger
	now       func() time.Time
}

// NewCoordinator creates a Coordinator. recorder and events may be nil.
func NewCoordinator(
	cfg Config,
	venues []domain.VenueClient,
	gate Gate,
	positions Positions,
	recorder ExecutionRecorder,
	events domain.EventPublisher,
	logger *slog.Logger,
) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	byVenue := make(map[domain.Venue]domain.VenueClient, len(venues))
	for _, v := range venues {
		byVenue[v.Venue()] = v
	}
	return &Coordinator{
		cfg:       cfg,
		venues:    byVenue,
		gate:      gate,
		positions: positions,
		recorder:  recorder,
		events:    events,
		inflight:  NewInFlight(),
		logger:    logger.With(slog.String("component", "executor")),
		now:       time.Now,
	}
}

// DryRun reports whether orders are simulated.
func (c *Coordinator) DryRun() bool {
	return c.cfg.DryRun
}

// InFlight reports whether pairID has an order set outstanding.
func (c *Coordinator) InFlight(pairID string) bool {
	return c.inflight.Has(pairID)
}

// InFlightPairs lists the pairs with an order set outstanding.
func (c *Coordinator) InFlightPairs() []string {
	return c.inflight.List()
}

// Execute runs one opportunity through the breaker and, if permitted, both
// venues. The returned record is also persisted. Errors classify the
// outcome: domain.ErrPairInFlight, a *risk.Veto, domain.ErrOneSidedFill or
// a venue error.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.ArbExecution, error) {
	pair := opp.Pair
	if !c.inflight.TryAcquire(pair.ID) {
		return domain.ArbExecution{}, fmt.Errorf("executor: pair %s: %w", pair.ID, domain.ErrPairInFlight)
	}
	defer c.inflight.Release(pair.ID)

	log := c.logger.With(
		slog.String("pair_id", pair.ID),
		slog.String("opportunity_id", opp.ID),
	)

	now := c.now()
	if opp.Expired(now) {
		return domain.ArbExecution{}, fmt.Errorf("executor: opportunity %s: %w", opp.ID, domain.ErrExpired)
	}

	size := opp.Size.Floor()
	if size.LessThan(decimal.NewFromInt(1)) {
		return domain.ArbExecution{}, fmt.Errorf("executor: size %s below one contract: %w", opp.Size, domain.ErrInvalidOrder)
	}

	grant, err := c.gate.Authorize(pair.ID, size)
	if err != nil {
		log.Warn("executor: vetoed", slog.String("reason", err.Error()))
		c.publish(ctx, domain.EventExecutionVetoed, domain.SeverityWarning, pair.ID, err.Error(), map[string]any{
			"opportunity_id": opp.ID,
			"size":           size.String(),
		})
		return domain.ArbExecution{}, err
	}
	size = grant.Size.Floor()
	if size.LessThan(decimal.NewFromInt(1)) {
		c.positions.Release(grant.Reservation)
		return domain.ArbExecution{}, fmt.Errorf("executor: granted %s below one contract: %w", grant.Size, domain.ErrLimitExceeded)
	}

	exec := domain.ArbExecution{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		PairID:        pair.ID,
		ArbType:       pair.ArbType,
		Size:          size,
		ExpectedCost:  opp.Cost.Mul(size),
		ExpectedEdge:  opp.Margin.Mul(size),
		RealizedPnL:   decimal.Zero,
		Fees:          decimal.Zero,
		Status:        domain.ArbExecPending,
		StartedAt:     now,
		Legs: []domain.ArbLeg{
			c.newLeg(pair.LegA, opp.QuoteA.Price, size),
			c.newLeg(pair.LegB, opp.QuoteB.Price, size),
		},
	}

	c.publish(ctx, domain.EventExecutionAttempted, domain.SeverityInfo, pair.ID, "executing order set", map[string]any{
		"execution_id": exec.ID,
		"size":         size.String(),
		"cost":         opp.Cost.String(),
		"margin":       opp.Margin.String(),
		"dry_run":      c.cfg.DryRun,
		"clipped":      grant.Clipped(),
	})

	if c.cfg.DryRun {
		c.positions.Release(grant.Reservation)
		exec.Status = domain.ArbExecSimulated
		c.finish(ctx, &exec)
		log.Info("executor: simulated order set",
			slog.String("leg_a", string(exec.Legs[0].Instrument.Key())),
			slog.String("leg_a_price", exec.Legs[0].ExpectedPrice.String()),
			slog.String("leg_b", string(exec.Legs[1].Instrument.Key())),
			slog.String("leg_b_price", exec.Legs[1].ExpectedPrice.String()),
			slog.String("size", size.String()),
			slog.String("expected_edge", exec.ExpectedEdge.String()),
		)
		c.publish(ctx, domain.EventExecutionSimulated, domain.SeverityInfo, pair.ID, "dry run: orders not sent", executionFields(exec))
		return exec, nil
	}

	clientA, okA := c.venues[pair.LegA.Venue]
	clientB, okB := c.venues[pair.LegB.Venue]
	if !okA || !okB {
		c.positions.Release(grant.Reservation)
		exec.Status = domain.ArbExecFailed
		exec.Error = domain.ErrNoVenueClient.Error()
		c.finish(ctx, &exec)
		return exec, fmt.Errorf("executor: pair %s: %w", pair.ID, domain.ErrNoVenueClient)
	}

	// Both venue budgets are drawn before either leg goes out, so a
	// throttled venue cannot leave the other leg unhedged.
	clients, err := admit(ctx, [2]domain.VenueClient{clientA, clientB})
	if err != nil {
		c.positions.Release(grant.Reservation)
		exec.Status = domain.ArbExecFailed
		exec.Error = err.Error()
		c.finish(ctx, &exec)
		log.Warn("executor: order budget exhausted", slog.String("error", err.Error()))
		c.publish(ctx, domain.EventExecutionVetoed, domain.SeverityWarning, pair.ID, err.Error(), map[string]any{
			"opportunity_id": opp.ID,
			"execution_id":   exec.ID,
			"size":           size.String(),
		})
		return exec, fmt.Errorf("executor: pair %s: %w", pair.ID, err)
	}

	results := c.dispatch(ctx, clients, exec)
	return c.reconcile(ctx, log, grant, exec, results)
}

// admit resolves each budgeted client to the one its order is placed
// through, failing if any venue has no budget left.
func admit(ctx context.Context, clients [2]domain.VenueClient) ([2]domain.VenueClient, error) {
	for i, client := range clients {
		b, ok := client.(Budgeted)
		if !ok {
			continue
		}
		admitted, err := b.Admit(ctx)
		if err != nil {
			return clients, err
		}
		clients[i] = admitted
	}
	return clients, nil
}

func (c *Coordinator) newLeg(in domain.Instrument, quoted, size decimal.Decimal) domain.ArbLeg {
	return domain.ArbLeg{
		Instrument:    in,
		Side:          domain.OrderSideBuy,
		ExpectedPrice: quoted,
		Size:          size,
		FilledPrice:   decimal.Zero,
		FilledSize:    decimal.Zero,
		Fee:           decimal.Zero,
		Status:        domain.OrderStatusPending,
	}
}

// dispatch submits both legs at the same time and waits for both.
func (c *Coordinator) dispatch(ctx context.Context, clients [2]domain.VenueClient, exec domain.ArbExecution) [2]legResult {
	var (
		wg      sync.WaitGroup
		results [2]legResult
	)
	for i := range clients {
		leg := exec.Legs[i]
		limit := decimal.Min(leg.ExpectedPrice.Add(c.cfg.Slippage), maxPrice)
		req := domain.OrderRequest{
			ClientID:   fmt.Sprintf("%s-%d", exec.ID, i),
			Instrument: leg.Instrument,
			Side:       domain.OrderSideBuy,
			Type:       domain.OrderTypeFAK,
			Price:      limit,
			Size:       leg.Size,
		}
		wg.Add(1)
		go func(i int, client domain.VenueClient) {
			defer wg.Done()
			results[i] = placeAndWait(ctx, client, req, c.cfg.Timeout, c.cfg.PollInterval)
		}(i, clients[i])
	}
	wg.Wait()
	return results
}

// reconcile books fills into the ledger and the breaker and classifies the
// outcome.
func (c *Coordinator) reconcile(ctx context.Context, log *slog.Logger, grant risk.Grant, exec domain.ArbExecution, results [2]legResult) (domain.ArbExecution, error) {
	for i, r := range results {
		leg := &exec.Legs[i]
		leg.OrderID = r.fill.OrderID
		leg.Status = r.fill.Status
		leg.FilledSize = r.fill.FilledSize
		leg.FilledPrice = r.fill.FilledPrice
		leg.Fee = r.fill.Fee
		if r.err != nil {
			leg.Error = r.err.Error()
		} else if r.fill.Reason != "" {
			leg.Error = r.fill.Reason
		}
		exec.Fees = exec.Fees.Add(leg.Fee)
	}
	a, b := exec.Legs[0], exec.Legs[1]

	if !a.Filled() && !b.Filled() {
		c.positions.Release(grant.Reservation)
		venueErr := results[0].venueError() || results[1].venueError()
		if venueErr {
			count := c.gate.RecordError()
			exec.Status = domain.ArbExecFailed
			exec.Error = joinLegErrors(results)
			c.finish(ctx, &exec)
			log.Warn("executor: order set failed", slog.String("error", exec.Error), slog.Int("consecutive_errors", count))
			c.publish(ctx, domain.EventExecutionFailed, domain.SeverityWarning, exec.PairID, exec.Error, executionFields(exec))
			return exec, fmt.Errorf("executor: pair %s: %s", exec.PairID, exec.Error)
		}
		exec.Status = domain.ArbExecMissed
		c.finish(ctx, &exec)
		log.Info("executor: neither leg filled, opportunity gone")
		c.publish(ctx, domain.EventExecutionFailed, domain.SeverityInfo, exec.PairID, "neither leg filled", executionFields(exec))
		return exec, nil
	}

	pnl := c.positions.Settle(grant.Reservation,
		risk.LegFill{Instrument: a.Instrument.Key(), Quantity: a.FilledSize, Price: a.FilledPrice, Fee: a.Fee},
		risk.LegFill{Instrument: b.Instrument.Key(), Quantity: b.FilledSize, Price: b.FilledPrice, Fee: b.Fee},
	)
	exec.RealizedPnL = pnl

	if a.FilledSize.Equal(b.FilledSize) {
		c.gate.RecordSuccess()
		c.gate.CheckDailyLoss()
		exec.Status = domain.ArbExecFilled
		c.finish(ctx, &exec)
		log.Info("executor: order set filled",
			slog.String("size", a.FilledSize.String()),
			slog.String("realized_pnl", pnl.String()),
		)
		c.publish(ctx, domain.EventExecutionCompleted, domain.SeverityInfo, exec.PairID, "both legs filled", executionFields(exec))
		return exec, nil
	}

	count := c.gate.RecordError()
	c.gate.CheckDailyLoss()
	exec.Status = domain.ArbExecOneSided
	unhedged := a.FilledSize.Sub(b.FilledSize).Abs()
	exec.Error = fmt.Sprintf("%s: %s unhedged", domain.ErrOneSidedFill, unhedged)
	if msg := joinLegErrors(results); msg != "" {
		exec.Error += ": " + msg
	}
	c.finish(ctx, &exec)

	fields := executionFields(exec)
	fields["unhedged"] = unhedged.String()
	fields["consecutive_errors"] = count
	log.Error("executor: one-sided fill",
		slog.String("leg_a_filled", a.FilledSize.String()),
		slog.String("leg_b_filled", b.FilledSize.String()),
		slog.String("unhedged", unhedged.String()),
		slog.String("error", exec.Error),
	)
	c.publish(ctx, domain.EventOneSidedFill, domain.SeverityCritical, exec.PairID, exec.Error, fields)
	return exec, fmt.Errorf("executor: pair %s: %w", exec.PairID, domain.ErrOneSidedFill)
}

func (c *Coordinator) finish(ctx context.Context, exec *domain.ArbExecution) {
	done := c.now()
	exec.CompletedAt = &done
	if c.recorder == nil {
		return
	}
	// Recording must survive the caller's cancellation once orders are out.
	if err := c.recorder.Create(context.WithoutCancel(ctx), *exec); err != nil {
		c.logger.Warn("executor: record execution failed",
			slog.String("execution_id", exec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) publish(ctx context.Context, typ domain.EventType, sev domain.Severity, pairID, msg string, fields map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, domain.Event{
		Type:     typ,
		Severity: sev,
		PairID:   pairID,
		Message:  msg,
		Fields:   fields,
		Time:     c.now(),
	})
}

func executionFields(exec domain.ArbExecution) map[string]any {
	fields := map[string]any{
		"execution_id":  exec.ID,
		"status":        string(exec.Status),
		"size":          exec.Size.String(),
		"expected_cost": exec.ExpectedCost.String(),
		"expected_edge": exec.ExpectedEdge.String(),
		"realized_pnl":  exec.RealizedPnL.String(),
	}
	for i, leg := range exec.Legs {
		prefix := "leg_a_"
		if i == 1 {
			prefix = "leg_b_"
		}
		fields[prefix+"instrument"] = string(leg.Instrument.Key())
		fields[prefix+"price"] = leg.ExpectedPrice.String()
		fields[prefix+"filled"] = leg.FilledSize.String()
		if leg.OrderID != "" {
			fields[prefix+"order_id"] = leg.OrderID
		}
	}
	return fields
}

func joinLegErrors(results [2]legResult) string {
	var errs []error
	for i, r := range results {
		name := "leg a"
		if i == 1 {
			name = "leg b"
		}
		switch {
		case r.err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", name, r.err))
		case r.fill.Status == domain.OrderStatusRejected || r.fill.Status == domain.OrderStatusFailed:
			errs = append(errs, fmt.Errorf("%s: %w: %s", name, domain.ErrOrderRejected, r.fill.Reason))
		}
	}
	if len(errs) == 0 {
		return ""
	}
	return errors.Join(errs...).Error()
}
