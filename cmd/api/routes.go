package main

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandlers "finzen/internal/interfaces/http"
	"finzen/internal/shared/config"
	"finzen/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// OAuth callback is public: the mail provider calls it, identity
	// travels in the state parameter.
	mux.HandleFunc("/api/email-sync/callback/{provider}", deps.EmailSyncHandler.HandleCallback)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/email-sync/auth-url/{provider}", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleAuthURL)))
	mux.Handle("/api/email-sync/connections", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleConnections)))
	mux.Handle("/api/email-sync/connections/{id}", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleConnectionByID)))
	mux.Handle("/api/email-sync/connections/{id}/sync", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleSync)))
	mux.Handle("/api/email-sync/connections/{id}/filters", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleFilters)))
	mux.Handle("/api/email-sync/connections/{id}/filters/{filterId}", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleFilterByID)))
	mux.Handle("/api/email-sync/connections/{id}/sync-logs", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleSyncLogs)))
	mux.Handle("/api/email-sync/connections/{id}/emails", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleImportedEmails)))
	mux.Handle("/api/email-sync/sync", authMiddleware(http.HandlerFunc(deps.EmailSyncHandler.HandleSyncAll)))

	mux.Handle("/api/notifications/register-device/", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleRegisterDevice)))
	mux.Handle("/api/notifications/{id}", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleNotificationByID)))
	mux.Handle("/api/notifications/", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleNotifications)))

	// Apply global middleware
	handler := middleware.Logging(middleware.Telemetry(middleware.CORS(cfg.Server.AllowedHosts)(mux)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
