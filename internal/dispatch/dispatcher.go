package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/worldbroker/internal/correlator"
	"github.com/ashureev/worldbroker/internal/protocol"
	"github.com/ashureev/worldbroker/internal/registry"
	"github.com/ashureev/worldbroker/internal/telemetry"
)

// ValidationError is the machine-readable rejection a validateParams
// predicate returns; it is surfaced verbatim as the HTTP 400 body.
type ValidationError struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidateFunc is a pure predicate over extracted params: nil accepts the
// request, a non-nil ValidationError rejects it with HTTP 400.
type ValidateFunc func(params map[string]any) *ValidationError

// TargetResolver resolves a request's Registry session. Dispatcher is
// generic over this interface (rather than taking *registry.Registry
// directly) purely so tests can substitute a fake; production wiring
// always passes a *registry.Registry.
type TargetResolver interface {
	Get(clientID string) (*registry.Session, bool)
}

// Correlator is the subset of the pending-request table the dispatcher
// drives: register a waiter, cancel it when the request cannot be sent, and
// await a result (AwaitResult itself cancels the waiter on disconnect).
type Correlator interface {
	Register(requestID, sessionID string, deadline time.Duration) *correlator.Waiter
	Cancel(requestID string)
	AwaitResult(ctx context.Context, w *correlator.Waiter) (protocol.Envelope, error)
}

// Config describes one REST endpoint's mapping onto a WebSocket operation.
type Config struct {
	// Type is the operation name placed in the outbound envelope's `type`
	// field, e.g. "entity/get".
	Type string
	// Required and Optional list the parameters this endpoint accepts.
	Required []ParamSpec
	Optional []ParamSpec
	// Validate, if set, runs after extraction and before dispatch.
	Validate ValidateFunc
	// Timeout overrides the dispatcher's default per-request deadline.
	Timeout time.Duration
}

// Dispatcher is the single parameterized helper every REST endpoint hands
// its Config to. It is the only place requestIds are minted and timeouts
// armed.
type Dispatcher struct {
	registry       TargetResolver
	table          Correlator
	sink           telemetry.Sink
	defaultTimeout time.Duration
}

// New constructs a Dispatcher.
func New(reg TargetResolver, table Correlator, sink telemetry.Sink, defaultTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:       reg,
		table:          table,
		sink:           sink,
		defaultTimeout: defaultTimeout,
	}
}

// Handle builds the http.HandlerFunc for one REST endpoint from cfg.
func (d *Dispatcher) Handle(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := extractParams(r, cfg.Required, cfg.Optional)
		if err != nil {
			writeError(w, http.StatusBadRequest, "MissingParameter", err.Error())
			return
		}

		if cfg.Validate != nil {
			if verr := cfg.Validate(params); verr != nil {
				writeError(w, http.StatusBadRequest, verr.Error, verr.Suggestion)
				return
			}
		}

		clientID, _ := params["clientId"].(string)
		session, ok := d.registry.Get(clientID)
		if !ok {
			writeError(w, http.StatusNotFound, "WorldOffline", "")
			return
		}

		requestID := correlator.NewRequestID()
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = d.defaultTimeout
		}
		waiter := d.table.Register(requestID, session.ID(), timeout)

		extra, err := protocol.ExtraFromMap(remainingPayload(params))
		if err != nil {
			d.table.Cancel(requestID)
			writeError(w, http.StatusInternalServerError, "InternalError", "")
			return
		}

		env := protocol.Envelope{
			Type:      cfg.Type,
			RequestID: requestID,
			ClientID:  clientID,
			Extra:     extra,
		}

		if err := session.Send(r.Context(), env); err != nil {
			d.table.Cancel(requestID)
			d.sink.Warn("failed to deliver request to world", "clientId", clientID, "error", err)
			writeError(w, http.StatusBadGateway, "UpstreamSendFailed", "")
			return
		}

		reply, err := d.table.AwaitResult(r.Context(), waiter)
		d.respond(w, reply, err)
	}
}

func (d *Dispatcher) respond(w http.ResponseWriter, reply protocol.Envelope, err error) {
	switch {
	case err == nil:
		if reply.IsError() {
			writeError(w, http.StatusUnprocessableEntity, reply.Error, reply.Suggestion)
			return
		}
		writeRawPayload(w, http.StatusOK, reply.Extra)
	case errors.Is(err, correlator.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "UpstreamTimeout", "")
	case errors.Is(err, correlator.ErrSessionLost):
		writeError(w, http.StatusBadGateway, "WorldDisconnected", "")
	case errors.Is(err, correlator.ErrCancelled):
		// Caller hung up; no response to write.
	default:
		d.sink.Error("unexpected correlator error", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errCode, suggestion string) {
	body := map[string]string{"error": errCode}
	if suggestion != "" {
		body["suggestion"] = suggestion
	}
	writeJSON(w, status, body)
}

func writeRawPayload(w http.ResponseWriter, status int, extra map[string]json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(extra) == 0 {
		_, _ = w.Write([]byte("{}"))
		return
	}
	body, err := json.Marshal(extra)
	if err != nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_, _ = w.Write(body)
}
