// Package eyo is the client for the EYO wallet Pix gateway
// (https://docs.eyowallet.ru/). It implements the gateway port and maps the
// provider's response envelope onto the local error taxonomy.
package eyo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexusmarket/marketplace/internal/application/gateway"
	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/payout"
	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

const tracerName = "eyo-client"

// Metrics are optional; a nil field disables that instrument.
type Metrics struct {
	Requests *prometheus.CounterVec   // gateway_requests_total{endpoint,outcome}
	Duration *prometheus.HistogramVec // gateway_request_duration_seconds{endpoint}
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	metrics Metrics
}

func NewClient(cfg Config, metrics Metrics) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", cfg.APIKey)
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	return &Client{http: httpClient, metrics: metrics}
}

// envelope is the provider's uniform response wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

type paymentData struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transactionId"`
	Status        string  `json:"status"`
	Value         float64 `json:"value"`
	ValueInReais  float64 `json:"valueInReais"`
	QRCodeURL     string  `json:"qrcodeUrl"`
	QRCode        string  `json:"qrCode"`
	CopyPaste     string  `json:"copyPaste"`
}

type withdrawData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type createPaymentRequest struct {
	Value       float64 `json:"value"`
	Description string  `json:"description"`
	CoverFee    bool    `json:"coverFee"`
}

type createWithdrawRequest struct {
	Amount      float64 `json:"amount"`
	PixKey      string  `json:"pixKey"`
	PixKeyType  string  `json:"pixKeyType"`
	Description string  `json:"description"`
	CoverFee    bool    `json:"coverFee"`
}

func (c *Client) CreateCharge(ctx context.Context, amount decimal.Decimal, description string) (_ *gateway.CreatedCharge, err error) {
	ctx, finish := c.instrument(ctx, "payment.create")
	defer func() { finish(err) }()

	var env envelope[paymentData]
	resp, reqErr := c.http.R().
		SetContext(ctx).
		SetBody(createPaymentRequest{
			Value:       amount.InexactFloat64(),
			Description: description,
			CoverFee:    false,
		}).
		SetResult(&env).
		Post("/payment/create")
	if gwErr := c.check(resp, reqErr, env.Success, env.Message, false); gwErr != nil {
		return nil, gwErr
	}

	data := env.Data
	if data == nil || data.ID == "" || data.Status == "" || data.ValueInReais <= 0 {
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: "payment/create: missing id, status or amount"}
	}
	status, ok := charge.StatusFromProvider(data.Status)
	if !ok {
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: fmt.Sprintf("payment/create: unknown status %q", data.Status)}
	}

	return &gateway.CreatedCharge{
		ExternalID:    data.ID,
		TransactionID: data.TransactionID,
		Status:        status,
		Amount:        decimal.NewFromFloat(data.ValueInReais),
		QRCodeURL:     data.QRCodeURL,
		CopyPaste:     data.CopyPaste,
	}, nil
}

func (c *Client) GetChargeStatus(ctx context.Context, externalID string) (_ *gateway.ChargeStatus, err error) {
	ctx, finish := c.instrument(ctx, "payment.get")
	defer func() { finish(err) }()

	var env envelope[paymentData]
	resp, reqErr := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		Get("/payment/get/" + externalID)
	if gwErr := c.check(resp, reqErr, env.Success, env.Message, false); gwErr != nil {
		return nil, gwErr
	}

	data := env.Data
	if data == nil || data.ID == "" || data.Status == "" || data.Value <= 0 {
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: "payment/get: missing id, status or amount"}
	}
	status, ok := charge.StatusFromProvider(data.Status)
	if !ok {
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: fmt.Sprintf("payment/get: unknown status %q", data.Status)}
	}

	return &gateway.ChargeStatus{
		ExternalID: data.ID,
		Status:     status,
		Amount:     decimal.NewFromFloat(data.Value),
	}, nil
}

func (c *Client) CreatePayout(ctx context.Context, amount decimal.Decimal, key string, kind pixkey.Kind, description string) (_ *gateway.PayoutReceipt, err error) {
	ctx, finish := c.instrument(ctx, "withdraw.create")
	defer func() { finish(err) }()

	var env envelope[withdrawData]
	resp, reqErr := c.http.R().
		SetContext(ctx).
		SetBody(createWithdrawRequest{
			Amount:      amount.InexactFloat64(),
			PixKey:      key,
			PixKeyType:  string(kind),
			Description: description,
			CoverFee:    true,
		}).
		SetResult(&env).
		Post("/withdraw/create")
	if gwErr := c.check(resp, reqErr, env.Success, env.Message, true); gwErr != nil {
		return nil, gwErr
	}

	data := env.Data
	if data == nil || data.ID == "" || data.Status == "" {
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: "withdraw/create: missing id or status"}
	}

	status := payout.StatusPending
	switch data.Status {
	case "PENDING":
		status = payout.StatusPending
	case "COMPLETED":
		status = payout.StatusCompleted
	case "FAILED":
		status = payout.StatusFailed
	default:
		return nil, &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: fmt.Sprintf("withdraw/create: unknown status %q", data.Status)}
	}

	return &gateway.PayoutReceipt{
		ExternalID: data.ID,
		Status:     status,
	}, nil
}

// check maps transport failures and the provider envelope onto gateway
// errors. withdraw toggles beneficiary-key detection on rejections.
func (c *Client) check(resp *resty.Response, reqErr error, success bool, message string, withdraw bool) error {
	if reqErr != nil {
		// resty surfaces body unmarshal failures as request errors; a 2xx
		// with an undecodable body is a malformed response, not an outage.
		if resp != nil && resp.RawResponse != nil && !resp.IsError() {
			return &gateway.Error{Kind: gateway.ErrInvalidResponse, Message: reqErr.Error(), Err: reqErr}
		}
		return &gateway.Error{Kind: gateway.ErrUnreachable, Message: reqErr.Error(), Err: reqErr}
	}
	if resp.IsError() {
		return &gateway.Error{
			Kind:    gateway.ErrRejectedByProvider,
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		}
	}
	if !success {
		kind := gateway.ErrRejectedByProvider
		if withdraw && beneficiaryRejection(message) {
			kind = gateway.ErrInvalidBeneficiary
		}
		if message == "" {
			message = "provider reported failure without message"
		}
		return &gateway.Error{Kind: kind, Message: message}
	}
	return nil
}

func beneficiaryRejection(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "pix key") || strings.Contains(m, "pixkey") || strings.Contains(m, "beneficiary")
}

func (c *Client) instrument(ctx context.Context, endpoint string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Gateway."+endpoint,
		trace.WithAttributes(attribute.String("gateway.endpoint", endpoint)),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = string(gateway.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()

		if c.metrics.Requests != nil {
			c.metrics.Requests.WithLabelValues(endpoint, outcome).Inc()
		}
		if c.metrics.Duration != nil {
			c.metrics.Duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}
