package delivery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nexusmarket/marketplace/internal/domain/order"
	domoutbox "github.com/nexusmarket/marketplace/internal/domain/outbox"
	"github.com/nexusmarket/marketplace/internal/pkg/logging"
)

// MessagePurger is the messaging collaborator. The delivery flow issues a
// single purge command per order; message delivery itself lives elsewhere.
type MessagePurger interface {
	PurgeOrderMessages(ctx context.Context, orderID string) error
}

type Service struct {
	orders    order.Repository
	purger    MessagePurger
	publisher domoutbox.Publisher
}

func NewService(orders order.Repository, purger MessagePurger, publisher domoutbox.Publisher) *Service {
	return &Service{
		orders:    orders,
		purger:    purger,
		publisher: publisher,
	}
}

// MarkDelivered confirms delivery of an order on behalf of its seller and
// purges the order's chat history. The purge is intentional, irreversible
// data loss. Calling it on an order that is already delivered succeeds
// without re-triggering the purge.
func (s *Service) MarkDelivered(ctx context.Context, orderID, sellerID string) (*order.Order, error) {
	logger := logging.FromContext(ctx).With(
		zap.String("component", "delivery_service"),
		zap.String("order_id", orderID),
	)

	if orderID == "" {
		return nil, errors.New("delivery: order id is required")
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if sellerID != "" && o.SellerID != sellerID {
		return nil, order.ErrForbidden
	}

	if !o.MarkDelivered() {
		logger.Debug("delivery_already_confirmed")
		return o, nil
	}

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	// Purge failures do not undo the delivery; the chat history simply
	// outlives the order until an operator cleans it up.
	if s.purger != nil {
		if err := s.purger.PurgeOrderMessages(ctx, o.ID); err != nil {
			logger.Warn("message_purge_failed", zap.Error(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, order.NewDeliveredEvent(o)); err != nil {
			logger.Warn("event_publish_failed", zap.Error(err))
		}
	}

	logger.Info("order_delivered")
	return o, nil
}
