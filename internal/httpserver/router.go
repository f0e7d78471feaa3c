package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/ws"
	"chatcore/pkg/logger"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config        *config.Config
	Log           *logger.Logger
	Auth          *security.Authenticator
	Registry      *ws.Registry
	Router        *service.DeliveryRouter
	Conversations *service.ConversationService
	Notifications *service.NotificationService
	Users         *service.UserService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"connections": d.Registry.Len(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(d.Auth, d.Log))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", handleCreateConversation(d.Conversations))
			r.Get("/unread", handleUnread(d.Conversations))
			r.Patch("/{conversationID}/member", handleUpdateMember(d.Conversations))
			r.Post("/{conversationID}/read", handleMarkConversationRead(d.Router))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", handleListNotifications(d.Notifications))
			r.Get("/unread_count", handleUnreadNotifications(d.Notifications))
			r.Post("/{notificationID}/read", handleMarkNotificationRead(d.Notifications))
			r.Delete("/{notificationID}", handleDeleteNotification(d.Notifications))
		})

		r.Get("/presence/{userID}", handleGetPresence(d.Users))
	})

	// WebSocket endpoint. No request timeout: the connection lives as long as the client.
	r.With(RateLimitByIP(cfg.WSRateLimit, cfg.WSRateWindow)).Get("/ws", ws.MakeHandler(
		d.Registry,
		d.Auth,
		d.Router,
		ws.HandlerConfig{
			AllowedOrigins: cfg.CORSOrigins,
			QueueSize:      cfg.WSQueueSize,
			Pump: ws.PumpConfig{
				WriteWait:      cfg.WSWriteWait,
				PongWait:       cfg.WSPongWait,
				MaxMessageSize: cfg.WSMaxMessageBytes,
			},
		},
		d.Log,
	))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels to status codes. Anything unknown is
// reported as a bare 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
