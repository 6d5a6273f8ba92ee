package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/worldbroker/internal/telemetry"
	"github.com/coder/websocket"
)

// LifecycleController owns the WebSocket upgrade handshake, the per-session
// ping scheduler, and the registry-wide inactivity sweep.
type LifecycleController struct {
	registry      *Registry
	pingInterval  time.Duration
	sweepInterval time.Duration
	idleTimeout   time.Duration
	allowedOrigin string
	sink          telemetry.Sink
}

// NewLifecycleController wires a controller around an existing Registry.
func NewLifecycleController(registry *Registry, pingInterval, sweepInterval, idleTimeout time.Duration, sink telemetry.Sink) *LifecycleController {
	return &LifecycleController{
		registry:      registry,
		pingInterval:  pingInterval,
		sweepInterval: sweepInterval,
		idleTimeout:   idleTimeout,
		allowedOrigin: "*",
		sink:          sink,
	}
}

// Start launches the background inactivity-sweep loop. It returns
// immediately; the loop exits when ctx is cancelled.
func (c *LifecycleController) Start(ctx context.Context) {
	go c.runSweepLoop(ctx)
}

func (c *LifecycleController) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.registry.SweepInactive(c.idleTimeout)
		case <-ctx.Done():
			return
		}
	}
}

// ServeHTTP upgrades the connection, validates the id/token handshake,
// registers the Session, and blocks running its inbound pump alongside a
// per-connection ping scheduler until the session closes.
func (c *LifecycleController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("id")
	token := r.URL.Query().Get("token")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{c.allowedOrigin},
	})
	if err != nil {
		c.sink.Error("failed to accept websocket upgrade", "error", err)
		return
	}
	transport := NewWSTransport(conn)

	if clientID == "" || token == "" {
		_ = transport.Close(CloseProtocol, "missing id or token")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := c.registry.Add(ctx, clientID, token, transport)
	if err != nil {
		c.sink.Warn("handshake rejected", "clientId", clientID, "error", err)
		_ = transport.Close(CloseProtocol, "invalid credentials")
		return
	}

	stopPing := c.startPingTimer(ctx, session)
	defer stopPing()

	session.RunInboundPump(ctx)
}

func (c *LifecycleController) startPingTimer(ctx context.Context, session *Session) func() {
	pingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = session.Ping(pingCtx)
			case <-pingCtx.Done():
				return
			}
		}
	}()
	return cancel
}
