package server

import (
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthshare/internal/db"
	"healthshare/internal/handlers"
	"healthshare/internal/handlers/api"
	"healthshare/internal/lifecycle"
	"healthshare/internal/middleware"
)

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(database *db.DB, engine *lifecycle.Engine) {
	// Initialize middleware
	ownerMiddleware := middleware.NewOwnerMiddleware(s.Cfg.OwnerIDHeader)

	// Initialize handlers
	shareHandler := api.NewShareHandler(database, engine, s.Cfg)
	accessHandler := api.NewAccessHandler(engine)
	subjectHandler := api.NewSubjectHandler(engine)
	probeHandler := handlers.NewProbeHandler(database)

	// Owner-facing share API. The ingress authenticates and sets the
	// owner identity header; requests without it are rejected.
	s.App.Post("/api/shares", ownerMiddleware.RequireOwner, shareHandler.Create)
	s.App.Get("/api/shares", ownerMiddleware.RequireOwner, shareHandler.List)
	s.App.Get("/api/shares/stats", ownerMiddleware.RequireOwner, shareHandler.Stats)
	s.App.Post("/api/shares/revoke", ownerMiddleware.RequireOwner, shareHandler.BulkRevoke)
	s.App.Get("/api/shares/:id", ownerMiddleware.RequireOwner, shareHandler.Get)
	s.App.Get("/api/shares/:id/accesses", ownerMiddleware.RequireOwner, shareHandler.Accesses)
	s.App.Post("/api/shares/:id/revoke", ownerMiddleware.RequireOwner, shareHandler.Revoke)
	s.App.Put("/api/shares/:id/expiry", ownerMiddleware.RequireOwner, shareHandler.SetExpiry)

	// Generation service callback (internal network only)
	s.App.Post("/internal/subjects/:subjectId/ready", subjectHandler.Ready)

	// Anonymous share link access
	s.App.Get("/s/:token", accessHandler.Access)

	// Probes and metrics
	s.App.Get("/healthz", probeHandler.Liveness)
	s.App.Get("/readyz", probeHandler.Readiness)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
