package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func empty(c *Client) bool {
	select {
	case <-c.Send:
		return false
	default:
		return true
	}
}

func TestHub_BroadcastToUser(t *testing.T) {
	h := NewHub()
	a1, a2, b := NewClient(1, "USER"), NewClient(1, "USER"), NewClient(2, "USER")
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	assert.Equal(t, 3, h.ClientCount())

	h.BroadcastToUser(1, map[string]string{"type": "ping"})
	assert.Equal(t, "ping", recv(t, a1)["type"])
	assert.Equal(t, "ping", recv(t, a2)["type"])
	assert.True(t, empty(b))

	a1.Close()
	a1.Close()
	assert.Equal(t, 2, h.ClientCount())
	assert.True(t, h.Online(1))
	a2.Close()
	assert.False(t, h.Online(1))

	h.BroadcastToUser(1, map[string]string{"type": "late"})
}

func TestHub_BroadcastAllFilter(t *testing.T) {
	h := NewHub()
	u, admin := NewClient(1, "USER"), NewClient(2, "ADMIN")
	h.Register(u)
	h.Register(admin)

	h.BroadcastAll(map[string]string{"type": "broadcast"}, func(c *Client) bool { return c.Role == "ADMIN" })
	assert.True(t, empty(u))
	assert.Equal(t, "broadcast", recv(t, admin)["type"])
}

func TestChatHub_Rooms(t *testing.T) {
	h := NewChatHub()
	a, b := NewClient(1, "USER"), NewClient(2, "USER")
	room := h.Join("1_2", a)
	h.Join("1_2", b)
	assert.Equal(t, 2, room.ClientCount())

	room.Broadcast(a, map[string]string{"type": "typing"})
	assert.True(t, empty(a))
	assert.Equal(t, "typing", recv(t, b)["type"])

	h.BroadcastToRoom("1_2", map[string]string{"type": "message"})
	assert.Equal(t, "message", recv(t, a)["type"])
	assert.Equal(t, "message", recv(t, b)["type"])

	h.BroadcastToRoom("3_4", map[string]string{"type": "message"})

	h.Leave("1_2", a)
	h.Leave("1_2", b)
	assert.Equal(t, 0, h.RoomCount())
}

func TestClient_FullBufferDrops(t *testing.T) {
	c := &Client{UserID: 1, Send: make(chan []byte, 1)}
	c.deliver([]byte(`{}`))
	c.deliver([]byte(`{}`))
	assert.Len(t, c.Send, 1)
}
