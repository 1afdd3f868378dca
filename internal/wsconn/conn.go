// Package wsconn implements the WebSocket Connection Actor (C10): three
// goroutines (reader, writer, broadcast drain) per socket, cooperating
// over a bounded outbound queue — no lock is ever held across a socket
// I/O boundary.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/dispatch"
	"github.com/pmsync/pmsync/internal/pmauth"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/reqctx"
	"github.com/pmsync/pmsync/internal/shutdown"
	"github.com/pmsync/pmsync/internal/wire"
	"github.com/pmsync/pmsync/internal/wsregistry"
)

// maxViolations bounds how many rate-limit rejections a connection may
// accumulate before the actor closes it with reason "protocol
// violations" (spec §4.10; the original's web_socket_connection module
// exports the same constant but its body was not part of the retrieved
// source, so the threshold here is a fresh, reasonable choice).
const maxViolations = 5

// Conn runs one connection's Opening/Active/Closing/Closed lifecycle.
// Reader and writer are two cooperative halves sharing outbound, a
// bounded channel; neither half ever blocks the other on socket I/O.
type Conn struct {
	ws         *websocket.Conn
	info       *wsregistry.ConnectionInfo
	registry   *wsregistry.Registry
	dispatcher *dispatch.Dispatcher
	hub        *broadcast.Hub
	limiter    *pmauth.ConnectionRateLimiter
	guard      *shutdown.Guard
	cfg        config.WebSocketConfig
	shutdownTimeout time.Duration
	tenantID   string
	log        zerolog.Logger

	outbound chan []byte
	lastSeen chan struct{}
	cancel   context.CancelFunc
}

// sender adapts Conn's outbound channel to wsregistry.Sender so the
// registry and broadcaster never touch the socket directly.
type sender struct {
	outbound chan []byte
}

func (s sender) Send(frame []byte) bool {
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

// New builds a not-yet-registered Conn. Register is called separately
// (by Run) once outbound exists, since the registry needs a Sender
// that references this connection's queue.
func New(ws *websocket.Conn, registry *wsregistry.Registry, dispatcher *dispatch.Dispatcher,
	hub *broadcast.Hub, coordinator *shutdown.Coordinator, cfg config.WebSocketConfig, shutdownTimeout time.Duration,
	limiter *pmauth.ConnectionRateLimiter, tenantID string, log zerolog.Logger) *Conn {
	return &Conn{
		ws:              ws,
		registry:        registry,
		dispatcher:      dispatcher,
		hub:             hub,
		limiter:         limiter,
		guard:           coordinator.Subscribe(),
		cfg:             cfg,
		shutdownTimeout: shutdownTimeout,
		tenantID:        tenantID,
		log:             log,
		outbound:        make(chan []byte, cfg.SendBufferSize),
		lastSeen:        make(chan struct{}, 1),
	}
}

// Run registers the connection, then drives reader and writer until
// either exits; on any exit path it unregisters from C6 and closes the
// underlying socket. userID is the identity C1 already validated before
// the upgrade.
func (c *Conn) Run(ctx context.Context, userID string) error {
	info, err := c.registry.Register(userID, c.tenantID, sender{outbound: c.outbound})
	if err != nil {
		return err
	}
	c.info = info
	defer c.registry.Unregister(c.info.ConnectionID)
	defer c.guard.Release()

	receiver := c.hub.Subscribe(c.tenantID)
	defer receiver.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel

	writerDone := make(chan error, 1)
	go func() {
		err := c.writeLoop(ctx)
		cancel() // a writer exit (e.g. heartbeat timeout) also ends the reader
		writerDone <- err
	}()

	broadcastDone := make(chan struct{})
	go func() {
		defer close(broadcastDone)
		c.broadcastLoop(ctx, receiver)
	}()

	readerErr := c.readLoop(ctx, userID)
	cancel()
	writerErr := <-writerDone
	<-broadcastDone

	if readerErr != nil {
		return readerErr
	}
	return writerErr
}

// broadcastLoop drains this connection's tenant receiver (C8), applies
// the subscription filter (C7) against the connection's interest sets,
// and forwards matching frames into outbound via sender.Send; the writer
// half writes them to the socket. When outbound is full it closes the
// socket with "slow consumer" and cancels the connection.
func (c *Conn) broadcastLoop(ctx context.Context, receiver *broadcast.Receiver) {
	var filter wsregistry.Filter
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-receiver.C:
			if !ok {
				return
			}
			if !c.eventMatches(filter, event) {
				continue
			}
			if ok := (sender{outbound: c.outbound}).Send(event.Frame); !ok {
				c.sendClose(websocket.StatusPolicyViolation, "slow consumer")
				if c.cancel != nil {
					c.cancel()
				}
				return
			}
		}
	}
}

// eventMatches routes the event to the C7 predicate matching the
// entity it carries: a sprint-scoped event checks project/sprint
// interest, everything else (work items, comments, and any other
// activity routed through a work item) checks project/work-item
// interest.
func (c *Conn) eventMatches(filter wsregistry.Filter, event broadcast.Event) bool {
	subs := c.info.Subscriptions
	if event.SprintID != "" {
		return filter.ShouldReceiveSprintEvent(subs, event.ProjectID, event.SprintID)
	}
	return filter.ShouldReceiveWorkItemEvent(subs, event.ProjectID, event.WorkItemID)
}

// readLoop is the inbound half: decode, rate-limit, forward to C11.
func (c *Conn) readLoop(ctx context.Context, userID string) error {
	violations := 0
	for {
		select {
		case <-c.guard.C():
			c.sendClose(websocket.StatusNormalClosure, "server shutting down")
			return nil
		default:
		}

		_, frame, err := c.ws.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return nil // peer closed or transport error; nothing more to do
		}
		select {
		case c.lastSeen <- struct{}{}:
		default:
		}

		if err := c.limiter.Check(); err != nil {
			violations++
			c.outbound <- c.errorFrame("", err)
			if violations >= maxViolations {
				c.sendClose(websocket.StatusPolicyViolation, "protocol violations")
				return nil
			}
			continue
		}

		env, err := wire.UnmarshalFrame(frame)
		if err != nil {
			c.outbound <- c.errorFrame("", pmerr.InvalidMessageErr("frame did not decode as an envelope"))
			continue
		}

		rc := reqctx.New(userID, c.info.ConnectionID, env.MessageID)
		result := c.dispatcher.Dispatch(ctx, rc, c.tenantID, env)
		resultFrame, err := result.MarshalFrame()
		if err != nil {
			continue
		}
		if ok := (sender{outbound: c.outbound}).Send(resultFrame); !ok {
			c.sendClose(websocket.StatusPolicyViolation, "slow consumer")
			return nil
		}
	}
}

// writeLoop is the outbound half: drains outbound, emits heartbeats,
// and enforces heartbeat_timeout.
func (c *Conn) writeLoop(ctx context.Context) error {
	interval := time.Duration(c.cfg.HeartbeatIntervalSecs) * time.Second
	timeout := time.Duration(c.cfg.HeartbeatTimeoutSecs) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainOnShutdown()
			return nil

		case frame := <-c.outbound:
			if err := c.ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
				return err
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}

		case <-c.lastSeen:
			if !deadline.Stop() {
				<-deadline.C
			}
			deadline.Reset(timeout)

		case <-deadline.C:
			return fmt.Errorf("heartbeat timeout after %s", timeout)
		}
	}
}

// drainOnShutdown flushes whatever is already queued in outbound within
// shutdownTimeout before the caller closes the socket — "drain the
// outbound queue with a hard deadline" per §4.10.
func (c *Conn) drainOnShutdown() {
	deadline := time.After(c.shutdownTimeout)
	for {
		select {
		case frame := <-c.outbound:
			writeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.ws.Write(writeCtx, websocket.MessageBinary, frame)
			cancel()
		case <-deadline:
			return
		default:
			if len(c.outbound) == 0 {
				return
			}
		}
	}
}

func (c *Conn) sendClose(code websocket.StatusCode, reason string) {
	_ = c.ws.Close(code, reason)
}

func (c *Conn) errorFrame(messageID string, err error) []byte {
	classified, ok := pmerr.As(err)
	if !ok {
		classified = pmerr.InternalErr(err)
	}
	payload := wire.ErrorPayload{Code: string(classified.Kind), Message: classified.Message}
	body, _ := json.Marshal(payload)
	env := wire.Envelope{MessageID: messageID, Timestamp: time.Now().Unix(), Type: wire.TypeError, Payload: body}
	frame, _ := env.MarshalFrame()
	return frame
}
