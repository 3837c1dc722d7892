package docserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server exposes the document operations over HTTP. Every operation is a
// POST to /api/preferences/<operation> carrying {collection, query, data}.
type Server struct {
	router  chi.Router
	storage Storage
	cache   *Cache
	auth    *Auth
	logger  *zap.Logger
}

// NewServer creates the proxy server.
func NewServer(storage Storage, cache *Cache, auth *Auth, logger *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		storage: storage,
		cache:   cache,
		auth:    auth,
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.healthCheck)
	s.router.Post("/api/auth/login", s.login)

	s.router.Route("/api/preferences", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/createDocument", s.createDocument)
		r.Post("/readDocument", s.readDocument)
		r.Post("/updateDocument", s.updateDocument)
		r.Post("/deleteDocument", s.deleteDocument)
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

type operationRequest struct {
	Collection string                 `json:"collection"`
	Query      map[string]interface{} `json:"query"`
	Data       map[string]interface{} `json:"data"`
}

func (s *Server) decodeOperation(w http.ResponseWriter, r *http.Request) (operationRequest, bool) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.Collection == "" {
		respondError(w, http.StatusBadRequest, "Missing collection")
		return req, false
	}
	if req.Query == nil {
		req.Query = map[string]interface{}{}
	}
	return req, true
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "docstore",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	if req.Data == nil {
		respondError(w, http.StatusBadRequest, "Missing data")
		return
	}

	created, err := s.storage.Create(r.Context(), req.Collection, req.Data)
	if err != nil {
		s.logger.Error("Create failed", zap.String("collection", req.Collection), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Create failed")
		return
	}

	s.cache.Invalidate(r.Context(), req.Collection)
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}

	if docs, hit := s.cache.GetRead(r.Context(), req.Collection, req.Query); hit {
		respondJSON(w, http.StatusOK, docs)
		return
	}

	docs, err := s.storage.Read(r.Context(), req.Collection, req.Query)
	if err != nil {
		s.logger.Error("Read failed", zap.String("collection", req.Collection), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Read failed")
		return
	}

	s.cache.SetRead(r.Context(), req.Collection, req.Query, docs)
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	if req.Data == nil {
		respondError(w, http.StatusBadRequest, "Missing data")
		return
	}

	updated, err := s.storage.Update(r.Context(), req.Collection, req.Query, req.Data)
	if err != nil {
		s.logger.Error("Update failed", zap.String("collection", req.Collection), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Update failed")
		return
	}

	s.cache.Invalidate(r.Context(), req.Collection)
	respondJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}

	deleted, err := s.storage.Delete(r.Context(), req.Collection, req.Query)
	if err != nil {
		s.logger.Error("Delete failed", zap.String("collection", req.Collection), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Delete failed")
		return
	}

	s.cache.Invalidate(r.Context(), req.Collection)
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
