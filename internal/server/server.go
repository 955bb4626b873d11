package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/actions"
	"github.com/xaenox/omnidesk/internal/routing"
	"github.com/xaenox/omnidesk/internal/storage"
)

// Server is the REST surface over the routing core. Every mutating
// endpoint returns the full updated entity so callers can reconcile
// optimistic local state without a follow-up read.
type Server struct {
	storage     storage.Storage
	status      *routing.StatusEngine
	assignments *routing.Assignments
	resolver    *routing.Resolver
	handoffs    *routing.Handoffs
	inbound     *routing.Inbound
	dispatcher  *actions.Dispatcher
	logger      *zap.Logger
	httpServer  *http.Server
}

func New(addr string, store storage.Storage, status *routing.StatusEngine, assignments *routing.Assignments, resolver *routing.Resolver, handoffs *routing.Handoffs, inbound *routing.Inbound, dispatcher *actions.Dispatcher, logger *zap.Logger) *Server {
	s := &Server{
		storage:     store,
		status:      status,
		assignments: assignments,
		resolver:    resolver,
		handoffs:    handoffs,
		inbound:     inbound,
		dispatcher:  dispatcher,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	s.setupRoutes(r)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/candidates", s.GetCandidates)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Patch("/status", s.PatchStatus)
			r.Post("/assign-team", s.AssignTeam)
			r.Post("/assign-user", s.AssignUser)
			r.Get("/actions", s.ListActions)
			r.Post("/actions/{actionID}", s.ExecuteAction)
		})
	})

	r.Route("/handoffs", func(r chi.Router) {
		r.Get("/", s.ListHandoffs)
		r.Post("/", s.CreateHandoff)
		r.Get("/stats", s.HandoffStats)
		r.Post("/{handoffID}/accept", s.AcceptHandoff)
		r.Post("/{handoffID}/reject", s.RejectHandoff)
	})

	r.Get("/teams/{teamID}/users", s.TeamUsers)
	r.Post("/events/inbound", s.InboundEvent)
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
