package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/axmen-recycling/voice-agent/cmd/voice-agent-api/handlers"
	"github.com/axmen-recycling/voice-agent/cmd/voice-agent-api/middleware"
	"github.com/axmen-recycling/voice-agent/internal/auth"
	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/config"
	"github.com/axmen-recycling/voice-agent/internal/memory"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Services holds the dependencies the router wires into handlers.
type Services struct {
	Store    *storage.Store
	Cascade  handlers.Resolver
	Answers  cache.Client // nil when the answer cache is disabled
	Callers  *caller.Service
	Recorder *memory.Recorder
	Auth     *auth.Service
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, svc *Services) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	store := svc.Store
	stats := handlers.NewStatsHandler(logger, store, cfg.Observability.ServiceName)
	vapi := handlers.NewVapiHandler(logger, svc.Cascade, retrieval.NewPricingSource(store), svc.Callers, svc.Recorder)
	pricing := handlers.NewPricingHandler(logger, storage.NewPricingRepository(store), svc.Answers)
	knowledge := handlers.NewKnowledgeHandler(logger, storage.NewKnowledgeRepository(store), svc.Answers)
	materials := handlers.NewMaterialHandler(logger, storage.NewMaterialRepository(store), svc.Answers)
	conversations := handlers.NewConversationHandler(logger, storage.NewConversationRepository(store))
	callbacks := handlers.NewCallbackHandler(logger, storage.NewCallbackRepository(store), storage.NewCustomerMessageRepository(store))
	login := handlers.NewAuthHandler(logger, svc.Auth)

	r.Get("/", stats.Root)
	r.Get("/health", stats.Health)
	r.Get("/ready", stats.Ready)

	r.Route("/api", func(r chi.Router) {
		// Voice platform tools. Unauthenticated; the platform cannot carry a session.
		r.Route("/vapi", func(r chi.Router) {
			r.MethodNotAllowed(handlers.MethodNotAllowed)

			r.Post("/search-pricing", vapi.SearchPricing)
			r.Get("/search-pricing", vapi.LegacyPricing)
			r.Post("/search-faqs", vapi.SearchFAQs)
			r.Post("/get-caller-info", vapi.GetCallerInfo)
			r.Post("/save-callback", vapi.SaveCallback)
			r.Post("/save-message", vapi.SaveMessage)
			r.Post("/webhook", vapi.Webhook)
			r.Get("/test-database", stats.TestDatabase)
			r.Post("/test-database", stats.TestDatabase)
		})

		r.Post("/auth/login", login.Login)
		r.Post("/conversations", conversations.Create)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(svc.Auth))

			r.Route("/pricing", func(r chi.Router) {
				r.Get("/", pricing.List)
				r.Post("/", pricing.Create)
				r.Get("/{id}", pricing.Get)
				r.Put("/{id}", pricing.Update)
				r.Delete("/{id}", pricing.Delete)
			})

			r.Route("/recycle-knowledge", func(r chi.Router) {
				r.Get("/", knowledge.List)
				r.Post("/", knowledge.Create)
				r.Get("/{id}", knowledge.Get)
				r.Put("/{id}", knowledge.Update)
				r.Delete("/{id}", knowledge.Delete)
			})

			r.Route("/materials", func(r chi.Router) {
				r.Get("/", materials.List)
				r.Post("/", materials.Create)
				r.Get("/{id}", materials.Get)
				r.Put("/{id}", materials.Update)
				r.Delete("/{id}", materials.Delete)
			})

			r.Get("/conversations", conversations.List)
			r.Get("/conversations/{id}", conversations.Get)
			r.Put("/conversations/{id}", conversations.Update)

			r.Get("/callbacks", callbacks.List)
			r.Put("/callbacks/{id}/status", callbacks.UpdateStatus)
			r.Get("/messages", callbacks.Messages)

			r.Get("/stats", stats.Stats)
			r.Get("/resolutions/stats", stats.ResolutionStats)
		})
	})

	return r
}
