package product

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrInvalidPrice      = errors.New("product: price must be greater than zero")
	ErrInvalidQuantity   = errors.New("product: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("product: insufficient stock")
	ErrMissingPixKey     = errors.New("product: beneficiary pix key is required")
)

// DefaultCity is applied when a listing omits the seller's city.
const DefaultCity = "Não informado"

// Product is the inventory-relevant listing record. The beneficiary key and
// kind route the seller's payout; the kind is fixed once at registration,
// either supplied explicitly or classified from the key.
type Product struct {
	ID                 string
	SellerID           string
	Title              string
	Description        string
	Price              decimal.Decimal
	Quantity           int
	City               string
	BeneficiaryKey     string
	BeneficiaryKeyKind pixkey.Kind
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func New(id, sellerID, title string, price decimal.Decimal, quantity int, key string, kind pixkey.Kind) (*Product, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if key == "" {
		return nil, ErrMissingPixKey
	}
	if !kind.Valid() {
		kind = pixkey.Classify(key)
	}

	now := time.Now().UTC()
	return &Product{
		ID:                 id,
		SellerID:           sellerID,
		Title:              title,
		Price:              price,
		Quantity:           quantity,
		City:               DefaultCity,
		BeneficiaryKey:     key,
		BeneficiaryKeyKind: kind,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
