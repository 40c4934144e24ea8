package live

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/neemapp/chanda-gateway/internal/model"
)

func TestHub_Lifecycle(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.SubscriberCount())

	// Broadcast with nobody listening must not block or panic
	hub.Broadcast(&DonationEvent{Type: EventDonationCreated})

	hub.Close()
	hub.Close() // idempotent
}

func TestHub_HeartbeatRefreshDuringSweep(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := &clientConn{connID: "c1"}
	client.touch()
	hub.clients.Store(client.connID, client)

	// The read loop and the heartbeat checker touch lastHeart from
	// different goroutines; neither side may tear the other's view
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			client.touch()
		}
	}()
	for i := 0; i < 1000; i++ {
		hub.dropStaleClients()
	}
	<-done

	assert.Equal(t, 1, hub.SubscriberCount())
	assert.Less(t, client.idle(), hub.heartbeatTimeout)
}

func TestHub_ProtocolPingRefreshesHeartbeat(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &fasthttp.Server{Handler: hub.Handle}
	go srv.Serve(ln)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Keep reading so the client processes incoming control frames
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	var subscriber *clientConn
	hub.clients.Range(func(_, value interface{}) bool {
		subscriber = value.(*clientConn)
		return false
	})
	require.NotNil(t, subscriber)

	// Age the connection past the timeout, then send a protocol ping; the
	// ping handler brings the heartbeat back so the sweep keeps the client
	subscriber.lastHeart.Store(time.Now().Add(-time.Minute).UnixNano())
	require.NoError(t, conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)))

	require.Eventually(t, func() bool {
		return subscriber.idle() < hub.heartbeatTimeout
	}, 2*time.Second, 10*time.Millisecond)

	hub.dropStaleClients()
	assert.Equal(t, 1, hub.SubscriberCount())
}

func TestDonationEvent_JSON(t *testing.T) {
	event := &DonationEvent{
		Type: EventDonationCreated,
		Donation: &model.Donation{
			DonorName:    "Asha Patel",
			Amount:       500,
			ReceiptID:    "NMABC12345",
			FestivalName: "Ganpati Festival",
		},
		Count:       12,
		TotalAmount: 15000,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "donation.created", decoded["type"])
	assert.Equal(t, float64(12), decoded["count"])
	assert.Equal(t, float64(15000), decoded["total_amount"])

	donation := decoded["donation"].(map[string]interface{})
	assert.Equal(t, "Asha Patel", donation["donor_name"])
	assert.Equal(t, "NMABC12345", donation["receipt_id"])
}
