package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/docstore"
)

// Server represents the dashboard API server
type Server struct {
	router chi.Router
	store  docstore.Store
	views  *ViewManager
	logger *zap.Logger
}

// NewServer creates a new API server
func NewServer(store docstore.Store, views *ViewManager, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		views:  views,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	s.router.Get("/health", s.healthCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.listDevices)
			r.Get("/{id}", s.getDevice)
		})

		// Open dashboard views
		r.Route("/views", func(r chi.Router) {
			r.Post("/", s.createView)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/", s.openView)
				r.Delete("/", s.closeView)
				r.Get("/", s.getView)
				r.Post("/save/layout", s.saveLayout)
				r.Post("/save/config", s.saveConfiguration)
				r.Delete("/device", s.deleteDevice)
				r.Put("/tags/{index}", s.updateTag)
				r.Delete("/tags/{index}", s.deleteTag)
				r.Post("/move", s.moveElement)
				r.Post("/script/test", s.testScript)
				r.Get("/live", s.getLiveData)
				r.Get("/results", s.getResults)
				r.Get("/history", s.getHistory)
			})
		})
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
