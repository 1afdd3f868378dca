package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/dispatch"
	"github.com/pmsync/pmsync/internal/pmauth"
	"github.com/pmsync/pmsync/internal/shutdown"
	"github.com/pmsync/pmsync/internal/wsconn"
	"github.com/pmsync/pmsync/internal/wsregistry"
)

func secondsToDuration(s int64) time.Duration { return time.Duration(s) * time.Second }

var (
	errUpgradeImpersonation = errors.New("user_id query parameter is not allowed when authentication is enabled")
	errUpgradeUnauthorized  = errors.New("missing or invalid bearer token")
)

func newSessionID() string { return uuid.NewString() }

// WebSocketUpgrader builds the /ws handler: resolve identity (auth-mode
// aware), accept the socket, then hand it to a fresh connection actor.
// validator is nil in desktop/auth-disabled deployments.
type WebSocketUpgrader struct {
	Validator       *pmauth.Validator
	Registry        *wsregistry.Registry
	Dispatcher      *dispatch.Dispatcher
	Hub             *broadcast.Hub
	Coordinator     *shutdown.Coordinator
	Config          config.WebSocketConfig
	ShutdownTimeout int64 // seconds
	RateLimit       config.RateLimitConfig
}

func (u *WebSocketUpgrader) Handler(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := resolveUpgradeIdentity(r, u.Validator)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	limiter := pmauth.NewConnectionRateLimiter(u.RateLimit.MaxRequests, u.RateLimit.WindowSecs)
	shutdownTimeout := secondsToDuration(u.ShutdownTimeout)
	conn := wsconn.New(ws, u.Registry, u.Dispatcher, u.Hub, u.Coordinator, u.Config, shutdownTimeout, limiter, tenantID, log.Logger)

	if err := conn.Run(r.Context(), userID); err != nil {
		log.Info().Err(err).Str("user_id", userID).Msg("connection closed")
	}
}
