package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	appCatalog "github.com/nexusmarket/marketplace/internal/application/catalog"
	appCheckout "github.com/nexusmarket/marketplace/internal/application/checkout"
	appDelivery "github.com/nexusmarket/marketplace/internal/application/delivery"
	appReconcile "github.com/nexusmarket/marketplace/internal/application/reconcile"
	"github.com/nexusmarket/marketplace/internal/application/gateway"
	domainCharge "github.com/nexusmarket/marketplace/internal/domain/charge"
	domainOrder "github.com/nexusmarket/marketplace/internal/domain/order"
	domainPayout "github.com/nexusmarket/marketplace/internal/domain/payout"
	domainProduct "github.com/nexusmarket/marketplace/internal/domain/product"
	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

type Handler struct {
	checkout  *appCheckout.Service
	delivery  *appDelivery.Service
	catalog   *appCatalog.Service
	reconcile *appReconcile.Service
	orders    domainOrder.Repository
	identity  Identity
}

func NewHandler(
	checkout *appCheckout.Service,
	delivery *appDelivery.Service,
	catalog *appCatalog.Service,
	reconcile *appReconcile.Service,
	orders domainOrder.Repository,
	identity Identity,
) *Handler {
	if identity == nil {
		identity = HeaderIdentity{}
	}
	return &Handler{
		checkout:  checkout,
		delivery:  delivery,
		catalog:   catalog,
		reconcile: reconcile,
		orders:    orders,
		identity:  identity,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /products", h.handleRegisterProduct)
	mux.HandleFunc("GET /products", h.handleListProducts)
	mux.HandleFunc("POST /checkout", h.handleCheckout)
	mux.HandleFunc("GET /charges/{id}", h.handleGetCharge)
	mux.HandleFunc("GET /orders", h.handleListOrders)
	mux.HandleFunc("POST /orders/{id}/delivered", h.handleMarkDelivered)
	mux.HandleFunc("POST /payouts/{id}/confirm", h.handleConfirmPayout)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

type registerProductRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	City        string `json:"city"`
	PixKey      string `json:"pix_key"`
	PixKeyType  string `json:"pix_key_type"`
}

type productResponse struct {
	ID         string `json:"id"`
	SellerID   string `json:"seller_id"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	City       string `json:"city"`
	PixKeyType string `json:"pix_key_type"`
	CreatedAt  string `json:"created_at"`
}

func toProductResponse(p *domainProduct.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		SellerID:   p.SellerID,
		Title:      p.Title,
		Price:      p.Price.StringFixed(2),
		Quantity:   p.Quantity,
		City:       p.City,
		PixKeyType: string(p.BeneficiaryKeyKind),
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleRegisterProduct(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req registerProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("http: price must be a decimal string"))
		return
	}

	p, err := h.catalog.Register(r.Context(), appCatalog.RegisterInput{
		SellerID:    user.ID,
		Title:       req.Title,
		Description: req.Description,
		Price:       price,
		Quantity:    req.Quantity,
		City:        req.City,
		PixKey:      req.PixKey,
		PixKeyType:  pixkey.Kind(req.PixKeyType),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type checkoutRequest struct {
	ProductID       string          `json:"product_id"`
	Quantity        int             `json:"quantity"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
}

type checkoutResponse struct {
	ChargeID   string `json:"charge_id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Gross      string `json:"gross"`
	QRCodeURL  string `json:"qrcode_url,omitempty"`
	CopyPaste  string `json:"copy_paste,omitempty"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.checkout.StartCheckout(r.Context(), appCheckout.Input{
		BuyerID:         user.ID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		ChargeID:   result.ChargeID,
		ExternalID: result.ExternalID,
		Status:     string(result.Status),
		Gross:      result.Gross.StringFixed(2),
		QRCodeURL:  result.QRCodeURL,
		CopyPaste:  result.CopyPaste,
	})
}

type chargeResponse struct {
	ChargeID      string `json:"charge_id"`
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	Gross         string `json:"gross"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (h *Handler) handleGetCharge(w http.ResponseWriter, r *http.Request) {
	c, err := h.checkout.GetCharge(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chargeResponse{
		ChargeID:      c.ID,
		ExternalID:    c.ExternalID,
		Status:        string(c.Status),
		Gross:         c.GrossAmount.StringFixed(2),
		FailureReason: c.FailureReason,
	})
}

type orderResponse struct {
	ID           string `json:"id"`
	BuyerID      string `json:"buyer_id"`
	SellerID     string `json:"seller_id"`
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	Price        string `json:"price"`
	Quantity     int    `json:"quantity"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		BuyerID:      o.BuyerID,
		SellerID:     o.SellerID,
		ProductID:    o.ProductID,
		ProductTitle: o.ProductTitle,
		Price:        o.Price.StringFixed(2),
		Quantity:     o.Quantity,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var orders []*domainOrder.Order
	if user.Role == "seller" {
		orders, err = h.orders.ListBySeller(r.Context(), user.ID)
	} else {
		orders, err = h.orders.ListByBuyer(r.Context(), user.ID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	o, err := h.delivery.MarkDelivered(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type confirmPayoutRequest struct {
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
}

type payoutResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Net        string `json:"net"`
	Status     string `json:"status"`
}

func (h *Handler) handleConfirmPayout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identity.CurrentUser(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req confirmPayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.reconcile.ConfirmPayout(r.Context(), r.PathValue("id"), req.Completed, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutResponse{
		ID:         p.ID,
		ExternalID: p.ExternalID,
		Net:        p.NetAmount.StringFixed(2),
		Status:     string(p.Status),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, domainCharge.ErrNotFound),
		errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainProduct.ErrNotFound),
		errors.Is(err, domainPayout.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domainOrder.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domainProduct.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domainCharge.ErrNotSettled):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domainCharge.ErrInvalidAmount),
		errors.Is(err, domainCharge.ErrInvalidQuantity),
		errors.Is(err, domainProduct.ErrInvalidPrice),
		errors.Is(err, domainProduct.ErrInvalidQuantity),
		errors.Is(err, domainProduct.ErrMissingPixKey),
		errors.Is(err, domainPayout.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
