package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexusmarket/marketplace/internal/application/gateway"
	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/product"
	"github.com/nexusmarket/marketplace/internal/pkg/logging"
)

type IDGenerator interface {
	NewID() string
}

// Service starts a purchase: it asks the gateway for a Pix charge and
// records the charge with a snapshot of everything the reconciler will need
// once the provider settles it. The charge creation call is never retried;
// a duplicate request would bill the buyer twice.
type Service struct {
	products product.Repository
	charges  charge.Repository
	gw       gateway.Client
	idGen    IDGenerator
}

func NewService(products product.Repository, charges charge.Repository, gw gateway.Client, idGen IDGenerator) *Service {
	return &Service{
		products: products,
		charges:  charges,
		gw:       gw,
		idGen:    idGen,
	}
}

type Input struct {
	BuyerID         string
	ProductID       string
	Quantity        int
	ShippingAddress json.RawMessage
}

type Result struct {
	ChargeID   string
	ExternalID string
	Status     charge.Status
	Gross      decimal.Decimal
	QRCodeURL  string
	CopyPaste  string
}

func (s *Service) StartCheckout(ctx context.Context, input Input) (*Result, error) {
	logger := logging.FromContext(ctx).With(
		zap.String("component", "checkout_service"),
		zap.String("buyer_id", input.BuyerID),
		zap.String("product_id", input.ProductID),
		zap.Int("quantity", input.Quantity),
	)

	if input.BuyerID == "" {
		return nil, errors.New("checkout: buyer id is required")
	}
	if input.ProductID == "" {
		return nil, errors.New("checkout: product id is required")
	}
	if input.Quantity <= 0 {
		return nil, charge.ErrInvalidQuantity
	}

	p, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	// Soft availability check only. The authoritative guard is the
	// conditional decrement at settlement time; this just avoids charging a
	// buyer for stock that is already visibly gone.
	if p.Quantity < input.Quantity {
		return nil, product.ErrInsufficientStock
	}

	gross := p.Price.Mul(decimal.NewFromInt(int64(input.Quantity)))

	created, err := s.gw.CreateCharge(ctx, gross, fmt.Sprintf("Nexus Market: %s", p.Title))
	if err != nil {
		logger.Error("charge_create_failed", zap.Error(err))
		return nil, fmt.Errorf("checkout: create charge: %w", err)
	}

	c, err := charge.New(s.idGen.NewID(), created.ExternalID, gross, charge.Purchase{
		BuyerID:            input.BuyerID,
		SellerID:           p.SellerID,
		ProductID:          p.ID,
		ProductTitle:       p.Title,
		UnitPrice:          p.Price,
		Quantity:           input.Quantity,
		ShippingAddress:    input.ShippingAddress,
		BeneficiaryKey:     p.BeneficiaryKey,
		BeneficiaryKeyKind: p.BeneficiaryKeyKind,
	})
	if err != nil {
		return nil, err
	}

	if err := s.charges.Insert(ctx, c); err != nil {
		logger.Error("charge_save_failed", zap.String("charge_id", c.ID), zap.Error(err))
		return nil, fmt.Errorf("checkout: save charge: %w", err)
	}

	logger.Info("checkout_started",
		zap.String("charge_id", c.ID),
		zap.String("external_id", c.ExternalID),
		zap.String("gross", gross.String()),
	)

	return &Result{
		ChargeID:   c.ID,
		ExternalID: c.ExternalID,
		Status:     c.Status,
		Gross:      gross,
		QRCodeURL:  created.QRCodeURL,
		CopyPaste:  created.CopyPaste,
	}, nil
}

// GetCharge exposes charge state so a buyer can watch their payment settle.
func (s *Service) GetCharge(ctx context.Context, id string) (*charge.Charge, error) {
	if id == "" {
		return nil, errors.New("checkout: charge id is required")
	}
	return s.charges.Get(ctx, id)
}
