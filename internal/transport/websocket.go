package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/config"
	"github.com/geoplaces/geosearch/internal/dispatcher"
	"github.com/geoplaces/geosearch/internal/geo"
	"github.com/geoplaces/geosearch/internal/metrics"
)

// Engine is the subset of searchengine.Engine the handler depends on,
// reachable through dispatcher.Engine.
type Engine = dispatcher.Engine

// WebSocketHandler upgrades connections and wires each one to a fresh
// dispatcher.Session.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	engine   Engine
	cfg      config.PerformanceConfig
	log      *logrus.Entry
}

// NewWebSocketHandler constructs a handler bound to engine.
func NewWebSocketHandler(engine Engine, cfg config.PerformanceConfig, log *logrus.Entry) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		engine: engine,
		cfg:    cfg,
		log:    log,
	}
}

// client pairs a websocket connection with its session and a buffered send
// channel.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *dispatcher.Session
	cfg     config.PerformanceConfig
	log     *logrus.Entry
	closeOnce sync.Once
}

// HandleWebSocket upgrades the HTTP request and starts the client's
// read/write pumps.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Error("failed to upgrade to websocket")
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, 256),
		cfg:  h.cfg,
		log:  h.log,
	}
	cl.session = dispatcher.NewSession(h.engine, cl, h.log)

	metrics.WebSocketConnections.Inc()
	metrics.ActiveSessions.Inc()

	go cl.writePump()
	go cl.readPump()
}

// EmitPlacesUpdate implements dispatcher.Emitter.
func (c *client) EmitPlacesUpdate(places []cache.Place) {
	c.sendJSON(placesUpdateMessage{Type: "places_update", Places: toWirePlaces(places)})
	metrics.WebSocketMessagesOut.WithLabelValues("places_update").Inc()
	// Cooperative yield so rapid-fire batches don't coalesce into one
	// transport frame.
	time.Sleep(10 * time.Millisecond)
}

// EmitPlacesComplete implements dispatcher.Emitter.
func (c *client) EmitPlacesComplete(total int) {
	c.sendJSON(placesCompleteMessage{Type: "places_complete", Total: total})
	metrics.WebSocketMessagesOut.WithLabelValues("places_complete").Inc()
}

// EmitError implements dispatcher.Emitter.
func (c *client) EmitError(message string) {
	c.sendJSON(errorMessage{Type: "error", Message: message})
	metrics.WebSocketMessagesOut.WithLabelValues("error").Inc()
}

func (c *client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).Error("failed to marshal outbound message")
		return
	}
	select {
	case c.send <- data:
	case <-time.After(5 * time.Second):
		c.log.Warn("outbound message send timeout, dropping")
	}
}

// readPump reads location_update/disconnect messages from the client.
func (c *client) readPump() {
	defer func() {
		c.session.HandleDisconnect()
		c.conn.Close()
		metrics.WebSocketConnections.Dec()
		metrics.ActiveSessions.Dec()
		c.closeSend()
	}()

	pongWait := c.cfg.WebSocketPongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("websocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *client) handleMessage(raw []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.EmitError("invalid message payload")
		return
	}

	switch envelope.Type {
	case "location_update":
		var msg locationUpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.EmitError("invalid location_update payload")
			return
		}
		metrics.WebSocketMessagesIn.WithLabelValues("location_update").Inc()

		region := geo.NewSearchRegion(msg.resolvedLat(), msg.resolvedLon(), msg.resolvedRadius())
		c.session.HandleLocationUpdate(context.Background(), region)
	case "disconnect":
		metrics.WebSocketMessagesIn.WithLabelValues("disconnect").Inc()
		c.session.HandleDisconnect()
	default:
		c.EmitError("unknown message type")
	}
}

// writePump drains the send channel onto the socket and drives the ping
// heartbeat ticker.
func (c *client) writePump() {
	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Error("websocket write error")
				metrics.WebSocketErrors.Inc()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Error("ping write error")
				metrics.WebSocketErrors.Inc()
				return
			}
		}
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
