package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nexusmarket/marketplace/internal/application/gateway"
	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/order"
	domoutbox "github.com/nexusmarket/marketplace/internal/domain/outbox"
	"github.com/nexusmarket/marketplace/internal/domain/payout"
	"github.com/nexusmarket/marketplace/internal/domain/product"
	"github.com/nexusmarket/marketplace/internal/pkg/logging"
)

const (
	tracerName        = "reconcile-service"
	payoutDescription = "Repasse Nexus Market"
)

// ErrDuplicateReconciliation flags a second order or payout materializing
// for one charge. The compare-and-set on the charge status makes this
// unreachable; if it ever fires it is a defect and is logged as one.
var ErrDuplicateReconciliation = errors.New("reconcile: duplicate reconciliation detected")

type IDGenerator interface {
	NewID() string
}

// Metrics are optional; a nil field disables that instrument.
type Metrics struct {
	Settled         *prometheus.CounterVec // charges_settled_total{outcome}
	RefundsRequired prometheus.Counter     // refunds_required_total
}

// Service bridges the provider's eventually consistent charge status with
// local order, stock and payout state. All settlement side effects run at
// most once per charge: only the observer that wins the status
// compare-and-set gets to apply them.
type Service struct {
	charges  charge.Repository
	orders   order.Repository
	products product.Repository
	payouts  payout.Repository
	gw       gateway.Client

	publisher domoutbox.Publisher
	idGen     IDGenerator
	feeRate   decimal.Decimal
	metrics   Metrics
}

func NewService(
	charges charge.Repository,
	orders order.Repository,
	products product.Repository,
	payouts payout.Repository,
	gw gateway.Client,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	feeRate decimal.Decimal,
	metrics Metrics,
) *Service {
	return &Service{
		charges:   charges,
		orders:    orders,
		products:  products,
		payouts:   payouts,
		gw:        gw,
		publisher: publisher,
		idGen:     idGen,
		feeRate:   feeRate,
		metrics:   metrics,
	}
}

// ReconcileOutstanding runs one reconciliation pass: polls every charge
// still awaiting a terminal status and re-attempts payouts that were created
// but never handed to the provider. Transient gateway errors are collected
// and returned so the caller can back off; they never advance charge state.
func (s *Service) ReconcileOutstanding(ctx context.Context) error {
	outstanding, err := s.charges.ListOutstanding(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list outstanding: %w", err)
	}

	var errs []error
	for _, c := range outstanding {
		if err := s.pollCharge(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.retryUnsubmittedPayouts(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Service) pollCharge(ctx context.Context, c *charge.Charge) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Reconcile.PollCharge",
		trace.WithAttributes(
			attribute.String("charge.id", c.ID),
			attribute.String("charge.external_id", c.ExternalID),
			attribute.String("charge.status", string(c.Status)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "poll failed")
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
	}()

	logger := logging.FromContext(ctx).With(
		zap.String("component", "reconcile_service"),
		zap.String("charge_id", c.ID),
		zap.String("external_id", c.ExternalID),
	)

	st, err := s.gw.GetChargeStatus(ctx, c.ExternalID)
	if err != nil {
		if gateway.Transient(err) {
			logger.Warn("charge_poll_transient_error", zap.Error(err))
		} else {
			logger.Error("charge_poll_failed", zap.Error(err))
		}
		// Whatever the failure, charge status only moves on a trusted read.
		return fmt.Errorf("reconcile: poll charge %s: %w", c.ID, err)
	}

	switch st.Status {
	case charge.StatusPending:
		return nil
	case charge.StatusActive:
		return s.activate(ctx, logger, c)
	case charge.StatusCompleted:
		return s.settle(ctx, logger, c)
	case charge.StatusFailed:
		return s.fail(ctx, logger, c)
	}
	return nil
}

func (s *Service) activate(ctx context.Context, logger *zap.Logger, c *charge.Charge) error {
	if c.Status != charge.StatusPending {
		return nil
	}
	if _, err := s.charges.Transition(ctx, c.ID, charge.StatusPending, charge.StatusActive, ""); err != nil {
		if errors.Is(err, charge.ErrConflict) {
			return nil // another observer got there first
		}
		return fmt.Errorf("reconcile: activate charge %s: %w", c.ID, err)
	}
	logger.Info("charge_active")
	return nil
}

func (s *Service) fail(ctx context.Context, logger *zap.Logger, c *charge.Charge) error {
	if _, err := s.charges.Transition(ctx, c.ID, c.Status, charge.StatusFailed, "provider reported failure"); err != nil {
		if errors.Is(err, charge.ErrConflict) {
			return nil
		}
		return fmt.Errorf("reconcile: fail charge %s: %w", c.ID, err)
	}
	logger.Info("charge_failed")
	s.count("failed")
	return nil
}

// settle drives the one-time transition to completed and, for the winning
// observer only, the dependent side effects: stock decrement, order
// materialization and payout submission.
func (s *Service) settle(ctx context.Context, logger *zap.Logger, c *charge.Charge) error {
	settled, err := s.charges.Transition(ctx, c.ID, c.Status, charge.StatusCompleted, "")
	if err != nil {
		if errors.Is(err, charge.ErrConflict) {
			logger.Debug("settle_race_lost")
			return nil
		}
		return fmt.Errorf("reconcile: settle charge %s: %w", c.ID, err)
	}

	return s.applySettlement(ctx, logger, settled)
}

func (s *Service) applySettlement(ctx context.Context, logger *zap.Logger, c *charge.Charge) error {
	if err := s.products.DecrementStock(ctx, c.Purchase.ProductID, c.Purchase.Quantity); err != nil {
		// Payment is confirmed but the purchase cannot be honored. There is
		// no automatic refund; emit a signal carrying everything needed to
		// process one manually. The charge stays completed.
		logger.Error("refund_required",
			zap.String("product_id", c.Purchase.ProductID),
			zap.Int("quantity", c.Purchase.Quantity),
			zap.String("gross", c.GrossAmount.String()),
			zap.Error(err),
		)
		if s.metrics.RefundsRequired != nil {
			s.metrics.RefundsRequired.Inc()
		}
		s.count("refund_required")
		s.publish(ctx, logger, charge.NewRefundRequiredEvent(c, err.Error()))
		return nil
	}

	o, err := order.NewFromCharge(s.idGen.NewID(), c)
	if err != nil {
		return fmt.Errorf("reconcile: materialize order for charge %s: %w", c.ID, err)
	}
	if err := s.orders.Insert(ctx, o); err != nil {
		if errors.Is(err, order.ErrConflict) {
			logger.Error("duplicate_reconciliation_detected", zap.String("charge_id", c.ID))
			return fmt.Errorf("%w: order for charge %s", ErrDuplicateReconciliation, c.ID)
		}
		return fmt.Errorf("reconcile: insert order for charge %s: %w", c.ID, err)
	}

	p, err := payout.New(s.idGen.NewID(), c.ID, c.GrossAmount, s.feeRate, c.Purchase.BeneficiaryKey, c.Purchase.BeneficiaryKeyKind)
	if err != nil {
		return fmt.Errorf("reconcile: build payout for charge %s: %w", c.ID, err)
	}
	if err := s.payouts.Insert(ctx, p); err != nil {
		if errors.Is(err, payout.ErrConflict) {
			logger.Error("duplicate_reconciliation_detected", zap.String("charge_id", c.ID))
			return fmt.Errorf("%w: payout for charge %s", ErrDuplicateReconciliation, c.ID)
		}
		return fmt.Errorf("reconcile: insert payout for charge %s: %w", c.ID, err)
	}

	// Submission failures leave the payout pending; the next pass retries.
	// The order and stock decrement are never rolled back.
	s.submitPayout(ctx, logger, p)

	logger.Info("charge_settled",
		zap.String("order_id", o.ID),
		zap.String("payout_id", p.ID),
		zap.String("net", p.NetAmount.String()),
	)
	s.count("settled")
	s.publish(ctx, logger, charge.SettledEvent{
		ChargeID:   c.ID,
		ExternalID: c.ExternalID,
		OrderID:    o.ID,
		PayoutID:   p.ID,
		Gross:      c.GrossAmount,
		OccurredAt: o.CreatedAt,
	})
	return nil
}

func (s *Service) submitPayout(ctx context.Context, logger *zap.Logger, p *payout.Payout) {
	logger = logger.With(zap.String("payout_id", p.ID))

	receipt, err := s.gw.CreatePayout(ctx, p.NetAmount, p.BeneficiaryKey, p.BeneficiaryKeyKind, payoutDescription)
	if err != nil {
		if gateway.KindOf(err) == gateway.ErrInvalidBeneficiary {
			// Terminal: the seller's key is unusable. Needs manual follow-up.
			p.MarkFailed(err.Error())
			if updateErr := s.payouts.Update(ctx, p); updateErr != nil {
				logger.Error("payout_update_failed", zap.Error(updateErr))
			}
			logger.Error("payout_rejected_invalid_beneficiary", zap.Error(err))
			return
		}
		logger.Warn("payout_submit_failed_will_retry", zap.Error(err))
		return
	}

	p.MarkSubmitted(receipt.ExternalID, receipt.Status)
	if err := s.payouts.Update(ctx, p); err != nil {
		logger.Error("payout_update_failed", zap.Error(err))
		return
	}
	logger.Info("payout_submitted",
		zap.String("withdraw_id", receipt.ExternalID),
		zap.String("status", string(receipt.Status)),
	)
}

func (s *Service) retryUnsubmittedPayouts(ctx context.Context) error {
	pending, err := s.payouts.ListUnsubmitted(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list unsubmitted payouts: %w", err)
	}

	logger := logging.FromContext(ctx).With(zap.String("component", "reconcile_service"))
	for _, p := range pending {
		s.submitPayout(ctx, logger, p)
	}
	return nil
}

// ConfirmPayout records the provider's final word on a submitted payout.
// The wire contract offers no withdraw status poll, so confirmation arrives
// through an explicit call (operator action or provider callback).
func (s *Service) ConfirmPayout(ctx context.Context, payoutID string, completed bool, reason string) (*payout.Payout, error) {
	p, err := s.payouts.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	if completed {
		p.MarkCompleted()
	} else {
		p.MarkFailed(reason)
	}
	if err := s.payouts.Update(ctx, p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("payout_confirmed",
		zap.String("component", "reconcile_service"),
		zap.String("payout_id", p.ID),
		zap.String("status", string(p.Status)),
	)
	return p, nil
}

func (s *Service) count(outcome string) {
	if s.metrics.Settled != nil {
		s.metrics.Settled.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) publish(ctx context.Context, logger *zap.Logger, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.Warn("event_publish_failed", zap.String("event", e.EventName()), zap.Error(err))
	}
}
