package registry

import (
	"context"

	"github.com/coder/websocket"
)

// CloseCode identifies why a Session's transport was closed. These surface
// on the wire as WebSocket close codes or custom application codes.
type CloseCode int

const (
	CloseNormal      CloseCode = CloseCode(websocket.StatusNormalClosure)
	CloseProtocol    CloseCode = CloseCode(websocket.StatusPolicyViolation) // 1008, bad handshake
	CloseInternal    CloseCode = CloseCode(websocket.StatusInternalError)  // 1011
	CloseSuperseded  CloseCode = 4000                                      // application code: replaced by a newer connection
)

// Transport is the minimal bidirectional message channel a Session drives.
// It is satisfied by a thin adapter over *websocket.Conn; tests substitute a
// fake so Session/Registry logic can be exercised without a real socket.
type Transport interface {
	// Read blocks for the next inbound frame. It returns an error on close,
	// protocol violation, or context cancellation.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one outbound frame. Callers serialize access themselves
	// (Session.Send does this via its sendMu).
	Write(ctx context.Context, data []byte) error
	// Ping sends a protocol-level ping and waits for the matching pong.
	Ping(ctx context.Context) error
	// Close closes the underlying connection. Idempotent per the
	// underlying library's contract; callers should still guard repeat
	// calls since Close may not be safe to call concurrently with Write.
	Close(code CloseCode, reason string) error
}

// wsTransport adapts *websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an accepted WebSocket connection as a Transport.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	// coder/websocket owns the ping/pong control-frame payload internally;
	// it is not exposed for customization through Conn.Ping.
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(code CloseCode, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

// CloseStatus reports the close code carried by an error returned from
// Transport.Read, or -1 if err does not represent a normal WebSocket close.
func CloseStatus(err error) CloseCode {
	return CloseCode(websocket.CloseStatus(err))
}
