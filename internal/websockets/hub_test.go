package websockets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellyrush/marketplace/internal/events"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

func fakeClient(h *Hub, id string, role models.Role, buffer int) *Client {
	c := &Client{hub: h, send: make(chan []byte, buffer), subject: service.Subject{ID: id, Role: role}}
	h.add(c)
	return c
}

func received(c *Client) []Message {
	var out []Message
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var m Message
			if err := json.Unmarshal(b, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func TestHubRoutesOrderEvents(t *testing.T) {
	h := NewHub(nil)

	buyer := fakeClient(h, "b1", models.RoleBuyer, 8)
	otherBuyer := fakeClient(h, "b2", models.RoleBuyer, 8)
	vendor := fakeClient(h, "v1", models.RoleVendor, 8)
	rider := fakeClient(h, "d1", models.RoleDelivery, 8)
	otherRider := fakeClient(h, "d2", models.RoleDelivery, 8)
	admin := fakeClient(h, "a1", models.RoleAdmin, 8)

	created := events.Event{Type: events.OrderCreated, OrderID: "o1", BuyerID: "b1", VendorID: "v1", Status: models.OrderStatusPending}
	require.NoError(t, h.Publish(context.Background(), created))

	assert.Len(t, received(buyer), 1)
	assert.Len(t, received(vendor), 1)
	assert.Len(t, received(admin), 1)
	assert.Empty(t, received(otherBuyer))
	assert.Empty(t, received(rider), "pending orders are not offered to riders")

	ready := created
	ready.Type = events.OrderStatusChanged
	ready.Status = models.OrderStatusReady
	require.NoError(t, h.Publish(context.Background(), ready))

	assert.Len(t, received(rider), 1)
	assert.Len(t, received(otherRider), 1)

	assigned := ready
	assigned.Type = events.OrderAssigned
	assigned.DeliveryID = "d1"
	assigned.Status = models.OrderStatusOutForDelivery
	require.NoError(t, h.Publish(context.Background(), assigned))

	msgs := received(rider)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeOrderAssigned, msgs[0].Type)
	assert.Empty(t, received(otherRider))

	var e events.Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &e))
	assert.Equal(t, "o1", e.OrderID)
	assert.Equal(t, models.OrderStatusOutForDelivery, e.Status)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(nil)
	slow := fakeClient(h, "b1", models.RoleBuyer, 1)
	sub := slow.subject

	e := events.Event{Type: events.OrderCreated, OrderID: "o1", BuyerID: "b1"}
	require.NoError(t, h.Publish(context.Background(), e))
	assert.Equal(t, 1, h.Connected(sub))

	require.NoError(t, h.Publish(context.Background(), e))
	assert.Equal(t, 0, h.Connected(sub))

	// the buffered message is still readable, then the channel is closed
	_, ok := <-slow.send
	assert.True(t, ok)
	_, ok = <-slow.send
	assert.False(t, ok)
}

func TestServeWs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil)
	go h.Run(ctx)

	sub := service.Subject{ID: "v1", Role: models.RoleVendor}
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ServeWs(h, conn, sub)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Connected(sub) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Publish(ctx, events.Event{Type: events.OrderCreated, OrderID: "o1", VendorID: "v1"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeOrderCreated, msg.Type)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypePong, msg.Type)

	conn.Close()
	require.Eventually(t, func() bool { return h.Connected(sub) == 0 }, time.Second, 10*time.Millisecond)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, "http://evil.example"))
	assert.True(t, originAllowed([]string{"http://app.example"}, ""))
	assert.True(t, originAllowed([]string{"http://app.example"}, "http://APP.example"))
	assert.False(t, originAllowed([]string{"http://app.example"}, "http://evil.example"))
	assert.True(t, originAllowed([]string{"*"}, "http://evil.example"))
}
