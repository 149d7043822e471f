package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appCatalog "github.com/nexusmarket/marketplace/internal/application/catalog"
	appCheckout "github.com/nexusmarket/marketplace/internal/application/checkout"
	appDelivery "github.com/nexusmarket/marketplace/internal/application/delivery"
	appReconcile "github.com/nexusmarket/marketplace/internal/application/reconcile"
	"github.com/nexusmarket/marketplace/internal/config"
	domainCharge "github.com/nexusmarket/marketplace/internal/domain/charge"
	domoutbox "github.com/nexusmarket/marketplace/internal/domain/outbox"
	"github.com/nexusmarket/marketplace/internal/infrastructure/eyo"
	"github.com/nexusmarket/marketplace/internal/infrastructure/id"
	"github.com/nexusmarket/marketplace/internal/infrastructure/memory"
	"github.com/nexusmarket/marketplace/internal/infrastructure/outbox"
	"github.com/nexusmarket/marketplace/internal/pkg/logging"
	httptransport "github.com/nexusmarket/marketplace/internal/presentation/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	gatewayRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of payment gateway requests.",
		},
		[]string{"endpoint", "outcome"},
	)
	gatewayDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of payment gateway requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	chargesSettled := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charges_settled_total",
			Help: "Count of charge reconciliation outcomes.",
		},
		[]string{"outcome"},
	)
	refundsRequired := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refunds_required_total",
			Help: "Count of settled charges that could not be honored and need a manual refund.",
		},
	)
	reconcileCycles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_cycles_total",
			Help: "Total number of reconciliation passes.",
		},
	)
	prometheus.MustRegister(gatewayRequests, gatewayDuration, chargesSettled, refundsRequired, reconcileCycles)

	chargeRepo := memory.NewChargeRepository()
	orderRepo := memory.NewOrderRepository()
	productRepo := memory.NewProductRepository()
	payoutRepo := memory.NewPayoutRepository()
	messageStore := memory.NewMessageStore()
	idGenerator := id.NewUUIDGenerator()

	gatewayClient := eyo.NewClient(eyo.Config{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
	}, eyo.Metrics{
		Requests: gatewayRequests,
		Duration: gatewayDuration,
	})

	bus := outbox.NewBus(baseLogger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	// Refund-required signals are surfaced for manual intervention; nothing
	// in this core refunds automatically.
	bus.Subscribe(domainCharge.RefundRequiredEvent{}.EventName(), func(ctx context.Context, e domoutbox.Event) error {
		evt, ok := e.(domainCharge.RefundRequiredEvent)
		if !ok {
			return nil
		}
		baseLogger.Error("manual_refund_required",
			zap.String("charge_id", evt.ChargeID),
			zap.String("external_id", evt.ExternalID),
			zap.String("buyer_id", evt.BuyerID),
			zap.String("product_id", evt.ProductID),
			zap.Int("quantity", evt.Quantity),
			zap.String("gross", evt.Gross.String()),
			zap.String("reason", evt.Reason),
		)
		return nil
	})

	checkoutService := appCheckout.NewService(productRepo, chargeRepo, gatewayClient, idGenerator)
	catalogService := appCatalog.NewService(productRepo, idGenerator)
	deliveryService := appDelivery.NewService(orderRepo, messageStore, bus)
	reconcileService := appReconcile.NewService(
		chargeRepo, orderRepo, productRepo, payoutRepo,
		gatewayClient, bus, idGenerator, cfg.FeeRateDecimal(),
		appReconcile.Metrics{Settled: chargesSettled, RefundsRequired: refundsRequired},
	)

	rootCtx := logging.ContextWithLogger(context.Background(), baseLogger)

	worker := appReconcile.NewWorker(reconcileService, cfg.ReconcileInterval, cfg.ReconcileMaxBackoff, reconcileCycles)
	worker.Start(rootCtx)

	handler := httptransport.NewHandler(checkoutService, deliveryService, catalogService, reconcileService, orderRepo, httptransport.HeaderIdentity{})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	worker.Stop(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		baseLogger.Info("http_server_stopped")
	}
}
