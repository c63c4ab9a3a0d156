package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sessionWriteWait = 10 * time.Second
	sessionPongWait  = 60 * time.Second
	sessionPingEvery = (sessionPongWait * 9) / 10
	sessionSendQueue = 32
)

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// InboundMessage is a client-to-server frame on the session transport.
type InboundMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Channel string `json:"channel"`
	} `json:"payload"`
}

// OutboundMessage is a server-to-client frame on the session transport.
type OutboundMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Data      *Event    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

var errSendQueueFull = errors.New("stream: session send queue full")

// wsSender queues outbound frames for a single connection. Send never blocks:
// when the writer goroutine has fallen behind, the frame is dropped and the
// subscriber misses that copy (best-effort delivery per the broadcast contract).
type wsSender struct {
	ch   chan OutboundMessage
	done chan struct{}
}

func newWSSender() *wsSender {
	return &wsSender{
		ch:   make(chan OutboundMessage, sessionSendQueue),
		done: make(chan struct{}),
	}
}

func (s *wsSender) Send(msg OutboundMessage) error {
	select {
	case <-s.done:
		return errors.New("stream: session closed")
	case s.ch <- msg:
		return nil
	default:
		return errSendQueueFull
	}
}

// SessionHandler upgrades websocket connections and speaks the session
// protocol: subscribe, unsubscribe, ping. One handler serves all sessions,
// sharing the process-wide registry.
type SessionHandler struct {
	registry *Registry
}

func NewSessionHandler(registry *Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

func (h *SessionHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	sender := newWSSender()
	if err := h.registry.Register(sessionID, sender); err != nil {
		log.Printf("session %s register failed: %v", sessionID, err)
		return
	}
	// Disconnect must synchronously drop every subscription so later
	// publishes never attempt a send to a dead transport.
	defer h.registry.Unregister(sessionID)
	defer close(sender.done)

	log.Printf("session %s connected", sessionID)
	defer log.Printf("session %s disconnected", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeLoop(ctx, conn, sender.ch)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	if err := conn.SetReadDeadline(time.Now().Add(sessionPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(sessionPongWait))
	})

	_ = sender.Send(OutboundMessage{
		Type:      "connected",
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})

	for {
		var in InboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s read failed: %v", sessionID, err)
			}
			return
		}
		h.handleInbound(sessionID, sender, in)
	}
}

func (h *SessionHandler) handleInbound(sessionID string, sender *wsSender, in InboundMessage) {
	switch in.Type {
	case "subscribe":
		channel := strings.TrimSpace(in.Payload.Channel)
		if channel == "" {
			return
		}
		h.registry.Subscribe(sessionID, channel)
		_ = sender.Send(OutboundMessage{Type: "subscribed", Channel: channel})
	case "unsubscribe":
		channel := strings.TrimSpace(in.Payload.Channel)
		if channel == "" {
			return
		}
		h.registry.Unsubscribe(sessionID, channel)
		_ = sender.Send(OutboundMessage{Type: "unsubscribed", Channel: channel})
	case "ping":
		_ = sender.Send(OutboundMessage{Type: "pong", Timestamp: time.Now().UTC()})
	default:
		// Unknown frames are ignored; an error response would break older clients.
		log.Printf("session %s sent unknown message type %q", sessionID, in.Type)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, ch <-chan OutboundMessage) {
	ticker := time.NewTicker(sessionPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(sessionWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(sessionWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
