package live

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/pkg/logger"
	"github.com/neemapp/chanda-gateway/pkg/prom"
)

// DonationEvent is pushed to every live subscriber when a donation is
// recorded. Count and TotalAmount are the collection totals after the
// new donation so dashboards can update without a round trip.
type DonationEvent struct {
	Type        string          `json:"type"`
	Donation    *model.Donation `json:"donation"`
	Count       int64           `json:"count"`
	TotalAmount float64         `json:"total_amount"`
}

const EventDonationCreated = "donation.created"

type clientConn struct {
	conn     *websocket.Conn
	connID   string
	remoteIP string
	festival string

	// lastHeart holds Unix nanos; the read loop refreshes it while the
	// heartbeat checker reads it from its own goroutine
	lastHeart atomic.Int64

	mu sync.Mutex // guards writes to conn
}

func (c *clientConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *clientConn) touch() {
	c.lastHeart.Store(time.Now().UnixNano())
}

func (c *clientConn) idle() time.Duration {
	return time.Duration(time.Now().UnixNano() - c.lastHeart.Load())
}

// Hub fans donation events out to connected websocket clients. Clients may
// subscribe to a single festival via the "festival" query parameter; an
// empty value subscribes to everything.
type Hub struct {
	clients           sync.Map
	upgrader          websocket.FastHTTPUpgrader
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	stopCh            chan struct{}
	stopOnce          sync.Once
}

func NewHub() *Hub {
	h := &Hub{
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(ctx *fasthttp.RequestCtx) bool { return true },
		},
		heartbeatInterval: 10 * time.Second,
		heartbeatTimeout:  30 * time.Second,
		stopCh:            make(chan struct{}),
	}

	go h.heartbeatChecker()

	return h
}

func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stopCh) })

	h.clients.Range(func(key, value interface{}) bool {
		value.(*clientConn).conn.Close()
		h.clients.Delete(key)
		return true
	})
}

// Handle upgrades the request and serves the connection until the client
// goes away.
func (h *Hub) Handle(ctx *fasthttp.RequestCtx) {
	festival := string(ctx.QueryArgs().Peek("festival"))
	remoteIP := ctx.RemoteIP().String()

	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := &clientConn{
			conn:     conn,
			connID:   uuid.NewString(),
			remoteIP: remoteIP,
			festival: festival,
		}
		client.touch()

		h.clients.Store(client.connID, client)
		prom.IncGaugeVec(prom.SystemDonations, prom.MetricLiveSubscribers, "api")

		logger.Info("Live subscriber connected", "conn_id", client.connID, "ip", client.remoteIP, "festival", festival)

		h.serveClient(client)
	})

	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err, "ip", remoteIP)
	}
}

func (h *Hub) serveClient(client *clientConn) {
	defer func() {
		h.clients.Delete(client.connID)
		client.conn.Close()
		prom.AddGaugeVec(prom.SystemDonations, prom.MetricLiveSubscribers, -1, "api")
		logger.Info("Live subscriber disconnected", "conn_id", client.connID, "ip", client.remoteIP)
	}()

	// Control frames never surface through ReadMessage, so protocol pings
	// refresh the heartbeat from a handler
	client.conn.SetPingHandler(func(appData string) error {
		client.touch()
		err := client.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		messageType, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Websocket read error", "error", err, "conn_id", client.connID)
			}
			return
		}

		if messageType == websocket.TextMessage && string(message) == "ping" {
			client.touch()
			if err := client.write(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		}
		// Everything else is ignored, the stream is one-way
	}
}

func (h *Hub) heartbeatChecker() {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.dropStaleClients()
		}
	}
}

func (h *Hub) dropStaleClients() {
	h.clients.Range(func(key, value interface{}) bool {
		client := value.(*clientConn)
		if client.idle() > h.heartbeatTimeout {
			logger.Info("Live subscriber heartbeat timeout", "conn_id", client.connID, "ip", client.remoteIP)
			client.conn.Close()
			h.clients.Delete(key)
		}
		return true
	})
}

// Broadcast pushes the event to every subscriber whose festival filter
// matches. Writes run per connection so one slow client cannot stall the
// rest.
func (h *Hub) Broadcast(event *DonationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal live event", "error", err)
		return
	}

	h.clients.Range(func(key, value interface{}) bool {
		client := value.(*clientConn)
		if client.festival != "" && event.Donation != nil && client.festival != event.Donation.FestivalName {
			return true
		}

		go func(key interface{}, client *clientConn) {
			if err := client.write(websocket.TextMessage, data); err != nil {
				logger.Warn("Live broadcast write failed", "error", err, "conn_id", client.connID)
				client.conn.Close()
				h.clients.Delete(key)
			}
		}(key, client)
		return true
	})
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	count := 0
	h.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
