package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatcore/internal/security"
	"chatcore/pkg/logger"
)

var errMissingToken = errors.New("missing bearer token")

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts exact matches and scheme://host of the configured
// origins. "*" accepts any origin; an empty list rejects all browsers.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, wildcard := allowed["*"]; wildcard {
		return func(*http.Request) bool { return true }
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken reads the bearer credential from the Authorization header or,
// for browsers, from "Sec-WebSocket-Protocol: bearer, <token>".
func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", errMissingToken
}

// HandlerConfig tunes the /ws endpoint.
type HandlerConfig struct {
	AllowedOrigins []string
	QueueSize      int
	Pump           PumpConfig
}

// MakeHandler returns the handler of the realtime endpoint. The credential is
// checked before the upgrade, so a bad token never gets a socket.
func MakeHandler(
	registry *Registry,
	auth *security.Authenticator,
	router Router,
	cfg HandlerConfig,
	log *logger.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}
	pump := cfg.Pump.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		user, err := auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			log.Debug("ws: rejected credential", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := NewClient(user.ID, conn, cfg.QueueSize)
		clog := log.ForConnection(client.Handle, user.ID)
		session := NewSession(client, registry, router, clog)
		session.Start()
		clog.Info("ws: connected")

		go client.writePump(pump)
		client.readPump(pump, func(data []byte) {
			session.Handle(r.Context(), data)
		})

		registry.Deregister(client.Handle)
		clog.Info("ws: disconnected")
	}
}
