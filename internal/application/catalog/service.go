package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
	"github.com/nexusmarket/marketplace/internal/domain/product"
	"github.com/nexusmarket/marketplace/internal/pkg/logging"
)

type IDGenerator interface {
	NewID() string
}

// Service manages product listings. The beneficiary key kind is fixed here,
// at registration, so no later flow has to guess at defaults.
type Service struct {
	products product.Repository
	idGen    IDGenerator
}

func NewService(products product.Repository, idGen IDGenerator) *Service {
	return &Service{products: products, idGen: idGen}
}

type RegisterInput struct {
	SellerID    string
	Title       string
	Description string
	Price       decimal.Decimal
	Quantity    int
	City        string
	PixKey      string
	PixKeyType  pixkey.Kind
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*product.Product, error) {
	if input.SellerID == "" {
		return nil, errors.New("catalog: seller id is required")
	}
	if input.Title == "" {
		return nil, errors.New("catalog: title is required")
	}

	p, err := product.New(s.idGen.NewID(), input.SellerID, input.Title, input.Price, input.Quantity, input.PixKey, input.PixKeyType)
	if err != nil {
		return nil, err
	}
	p.Description = input.Description
	if input.City != "" {
		p.City = input.City
	}

	if err := s.products.Insert(ctx, p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("product_registered",
		zap.String("component", "catalog_service"),
		zap.String("product_id", p.ID),
		zap.String("seller_id", p.SellerID),
		zap.String("key_kind", string(p.BeneficiaryKeyKind)),
	)
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*product.Product, error) {
	return s.products.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*product.Product, error) {
	if id == "" {
		return nil, errors.New("catalog: product id is required")
	}
	return s.products.Get(ctx, id)
}
