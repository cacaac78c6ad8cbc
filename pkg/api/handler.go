package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Handler provides the HTTP surface of the payment core
type Handler struct {
	config  Config
	limiter *rateLimiter
}

// NewHandler creates a new payment API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = &relaypay.NoopLogger{}
	}
	if config.AdminRateLimit <= 0 {
		config.AdminRateLimit = 60
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		config:  config,
		limiter: newRateLimiter(config.AdminRateLimit, time.Minute),
	}, nil
}

// Routes returns the chi router for the payment endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/payment", h.CreatePayment)
	r.Get("/payment/{pubkey}/{paymentID}", h.GetPayment)
	r.Get("/payment", h.ListPayments)
	return r
}

// CreatePayment handles POST /payment
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.config.ValidatePubkey(req.Pubkey) {
		writeError(w, http.StatusBadRequest, "Invalid pubkey format")
		return
	}

	payment, err := h.config.Issuer.Issue(r.Context(), req.Pubkey, req.TierName,
		relaypay.BillingCycle(req.BillingCycle))
	switch {
	case err == nil:
	case errors.Is(err, relaypay.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, "Invalid tier name")
		return
	case errors.Is(err, relaypay.ErrInvalidCycle):
		writeError(w, http.StatusBadRequest, "Invalid billing cycle")
		return
	default:
		// Oracle and storage failures are logged with correlation
		// context; the client gets a generic message.
		h.config.Logger.Error("payment creation failed",
			relaypay.Field{Key: "pubkey", Value: req.Pubkey},
			relaypay.Field{Key: "tier", Value: req.TierName},
			relaypay.Field{Key: "error", Value: err.Error()},
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{
		ID:      payment.ID,
		Invoice: payment.SettlementInvoice,
		Status:  string(relaypay.StatusPending),
		Expires: payment.ExpiresAt,
	})
}

// GetPayment handles GET /payment/{pubkey}/{paymentID}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	pubkey := chi.URLParam(r, "pubkey")
	paymentID := chi.URLParam(r, "paymentID")

	status, err := h.config.Reconciler.CheckStatus(r.Context(), paymentID, pubkey)
	switch {
	case err == nil:
	case errors.Is(err, relaypay.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	default:
		h.config.Logger.Error("status check failed",
			relaypay.Field{Key: "payment_id", Value: paymentID},
			relaypay.Field{Key: "error", Value: err.Error()},
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	p, err := h.config.Storage.GetPayment(r.Context(), paymentID, pubkey)
	if err != nil {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}

	writeJSON(w, http.StatusOK, PaymentResponse{
		ID:      p.ID,
		Invoice: p.SettlementInvoice,
		Status:  string(status),
		Expires: p.ExpiresAt,
	})
}

// ListPayments handles GET /payment. The listing is a read-only local
// view: status is derived from stored fields without consulting the
// settlement network.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !h.limiter.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			writeError(w, http.StatusBadRequest, "Limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	payments, err := h.config.Storage.ListPayments(r.Context(), limit)
	if err != nil {
		h.config.Logger.Error("payment listing failed",
			relaypay.Field{Key: "error", Value: err.Error()},
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := h.config.Now()
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentResponse{
			ID:      p.ID,
			Invoice: p.SettlementInvoice,
			Status:  string(p.Status(now)),
			Expires: p.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.config.AdminToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	return token != auth && token == h.config.AdminToken
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
