package payout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

var (
	ErrNotFound           = errors.New("payout: not found")
	ErrConflict           = errors.New("payout: already exists for charge")
	ErrInvalidBeneficiary = errors.New("payout: beneficiary key is required")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payout is the seller-side withdrawal derived from one completed charge.
// NetAmount is fixed at creation time; it is never recomputed from the fee
// rate afterwards.
type Payout struct {
	ID                 string
	SourceChargeID     string
	ExternalID         string
	GrossAmount        decimal.Decimal
	NetAmount          decimal.Decimal
	BeneficiaryKey     string
	BeneficiaryKeyKind pixkey.Kind
	Status             Status
	FailureReason      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func New(id, sourceChargeID string, gross decimal.Decimal, feeRate decimal.Decimal, key string, kind pixkey.Kind) (*Payout, error) {
	if key == "" {
		return nil, ErrInvalidBeneficiary
	}
	if !kind.Valid() {
		kind = pixkey.Classify(key)
	}

	net, err := ComputeNet(gross, feeRate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Payout{
		ID:                 id,
		SourceChargeID:     sourceChargeID,
		GrossAmount:        gross,
		NetAmount:          net,
		BeneficiaryKey:     key,
		BeneficiaryKeyKind: kind,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// MarkSubmitted records the provider-side id and status returned by the
// withdraw creation call.
func (p *Payout) MarkSubmitted(externalID string, status Status) {
	p.ExternalID = externalID
	p.Status = status
	p.touch()
}

func (p *Payout) MarkCompleted() {
	p.Status = StatusCompleted
	p.touch()
}

func (p *Payout) MarkFailed(reason string) {
	p.Status = StatusFailed
	p.FailureReason = reason
	p.touch()
}

// Submitted reports whether the payout has been handed to the provider.
func (p *Payout) Submitted() bool { return p.ExternalID != "" }

func (p *Payout) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Payout) Clone() *Payout {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
