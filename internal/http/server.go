package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/purchases", func(r chi.Router) {
		r.Post("/airtime", handler.PurchaseAirtime)
		r.Post("/data", handler.PurchaseData)
		r.Post("/electricity", handler.PurchaseElectricity)
		r.Get("/{purchaseId}", handler.GetPurchase)
		r.Get("/{purchaseId}/events", handler.StreamEvents)
	})

	r.Get("/products/{kind}", handler.ListProducts)

	r.Route("/owners/{ownerId}", func(r chi.Router) {
		r.Get("/balance", handler.GetBalance)
		r.Get("/transactions", handler.ListTransactions)
	})

	return &Server{Router: r}
}
