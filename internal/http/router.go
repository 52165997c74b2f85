package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// CallbackSecret signs payment provider callbacks
	CallbackSecret string
}

// NewRouter mounts the checkout API and wraps it with server tracing
func NewRouter(h *CheckoutHandler, translator *i18n.Translator, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(BodyLimit(cfg.MaxRequestBodySize))
	r.Use(LanguageMiddleware(translator))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.StartSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.CancelSession)
				r.Post("/location", h.ValidateLocation)
				r.Get("/plans", h.ListPlans)
				r.Post("/plan", h.SelectPlan)
				r.Get("/contracts", h.ListContracts)
				r.Post("/contract", h.SelectContract)
				r.Get("/catalogue", h.ListCatalogue)
				r.Post("/catalogue/confirm", h.ConfirmCatalogue)
				r.Post("/equipment", h.AddEquipment)
				r.Delete("/equipment/{cartId}", h.RemoveEquipment)
				r.Post("/form", h.SubmitForm)
				r.Get("/shipping", h.ListShippingOptions)
				r.Post("/shipping", h.SelectShipping)
				r.Post("/payment", h.SubmitPayment)
				r.Post("/retry", h.Retry)
				r.Post("/back", h.GoBack)
				r.Get("/summary", h.Summary)
			})
		})
		r.With(SignedCallback(cfg.CallbackSecret)).Post("/payments/callback", h.PaymentCallback)
	})

	return otelhttp.NewHandler(r, "fixed-checkout")
}
