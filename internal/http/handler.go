package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vascredit/internal/gateway"
	"vascredit/internal/journal"
	"vascredit/internal/ledger"
	"vascredit/internal/models"
	"vascredit/internal/saga"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vas_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vas_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"method", "endpoint"})
)

type Purchaser interface {
	Run(ctx context.Context, ownerID string, req models.PurchaseRequest) (*saga.Result, error)
}

type Catalog interface {
	ListProducts(ctx context.Context, kind models.ServiceKind) ([]gateway.Product, error)
}

type LedgerReader interface {
	Balance(ctx context.Context, ownerID string) (ledger.Balance, error)
	TransactionsByOwner(ctx context.Context, ownerID string) ([]ledger.TransactionRecord, error)
}

type PurchaseReader interface {
	Get(ctx context.Context, purchaseID string) (*models.Purchase, error)
}

type Handler struct {
	Purchases Purchaser
	Catalog   Catalog
	Ledger    LedgerReader
	Journal   PurchaseReader
	Hub       *Hub
}

type purchaseRequestBody struct {
	ProductCode     string `json:"productCode"`
	MobileNumber    string `json:"mobileNumber"`
	MeterNumber     string `json:"meterNumber"`
	AmountCents     int64  `json:"amountCents"`
	CustomReference string `json:"customReference"`
}

type purchaseResponse struct {
	PurchaseID    string `json:"purchaseId"`
	TransactionID string `json:"transactionId,omitempty"`
	State         string `json:"state"`
	Reference     string `json:"reference,omitempty"`
	Token         string `json:"token,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (h *Handler) PurchaseAirtime(w http.ResponseWriter, r *http.Request) {
	h.purchase(w, r, models.KindAirtime)
}

func (h *Handler) PurchaseData(w http.ResponseWriter, r *http.Request) {
	h.purchase(w, r, models.KindData)
}

func (h *Handler) PurchaseElectricity(w http.ResponseWriter, r *http.Request) {
	h.purchase(w, r, models.KindElectricity)
}

// purchase is the initiator boundary: field selection and validation only,
// then hand off to the orchestrator and map its terminal outcome.
func (h *Handler) purchase(w http.ResponseWriter, r *http.Request, kind models.ServiceKind) {
	endpoint := "/purchases/" + string(kind)
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	ownerID := r.Header.Get("X-Employee-Number")
	if ownerID == "" {
		h.respondError(w, http.StatusUnauthorized, "missing employee number", endpoint)
		return
	}

	var body purchaseRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid json body", endpoint)
		return
	}

	destination := body.MobileNumber
	if kind == models.KindElectricity {
		destination = body.MeterNumber
	}
	req := models.PurchaseRequest{
		Kind:            kind,
		ProductCode:     body.ProductCode,
		Destination:     destination,
		AmountCents:     body.AmountCents,
		CustomReference: body.CustomReference,
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), endpoint)
		return
	}

	// Eligibility gate; the saga itself assumes this precondition holds.
	bal, err := h.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "credit balance unavailable", endpoint)
		return
	}
	if req.AmountCents > bal.ClosingCents {
		h.respondError(w, http.StatusPaymentRequired, "insufficient credit", endpoint)
		return
	}

	res, err := h.Purchases.Run(r.Context(), ownerID, req)
	status, msg := classifyOutcome(err)
	resp := purchaseResponse{Error: msg}
	if res != nil {
		resp.PurchaseID = res.PurchaseID
		resp.TransactionID = res.LedgerTransactionID
		resp.State = string(res.State)
		resp.Reference = res.Reference
		resp.Token = res.Token
		resp.Attempts = res.Attempts
	}
	httpRequestsTotal.WithLabelValues("POST", endpoint, http.StatusText(status)).Inc()
	writeJSON(w, status, resp)
}

// classifyOutcome maps saga terminal errors to transport status. Outcomes
// after gateway acceptance carry the reference in the response body so the
// caller can reconcile instead of assuming nothing happened.
func classifyOutcome(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, saga.ErrMissingOwner):
		return http.StatusUnauthorized, "missing employee number"
	case errors.Is(err, saga.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "ledger unavailable, nothing was purchased, retry later"
	case errors.Is(err, saga.ErrPurchaseRejected):
		return http.StatusUnprocessableEntity, "purchase rejected by the provider, no credit was used"
	case errors.Is(err, saga.ErrMissingReference):
		return http.StatusBadGateway, "provider accepted without a reference, contact support"
	case errors.Is(err, saga.ErrUnexpectedReconfirmation),
		errors.Is(err, saga.ErrConfirmFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, saga.ErrTimedOut):
		return http.StatusGatewayTimeout, "settlement still pending, check transaction history before retrying"
	case errors.Is(err, saga.ErrCreditRecordingFailed):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "purchase failed"
	}
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	p, err := h.Journal.Get(r.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			writeError(w, http.StatusNotFound, "purchase not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get purchase failed")
		return
	}
	writeJSON(w, http.StatusOK, purchaseResponse{
		PurchaseID:    p.ID,
		TransactionID: p.LedgerTransactionID,
		State:         string(p.State),
		Reference:     p.Reference,
		Token:         p.Token,
		Attempts:      p.Attempts,
		Error:         p.FailureReason,
	})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	kind := models.ServiceKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown service kind")
		return
	}
	products, err := h.Catalog.ListProducts(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusBadGateway, "product list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"product_list": products,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	bal, err := h.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	txs, err := h.Ledger.TransactionsByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "transaction history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg, endpoint string) {
	httpRequestsTotal.WithLabelValues("POST", endpoint, http.StatusText(status)).Inc()
	writeError(w, status, msg)
}
