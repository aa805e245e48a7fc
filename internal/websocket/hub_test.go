package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, accountID int64) *Client {
	return &Client{
		ID:        "test",
		AccountID: accountID,
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	hub.Unregister(c2)
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub(slog.Default())
	anon := mockClient(hub, 0)
	member := mockClient(hub, 7)
	hub.Register(anon)
	hub.Register(member)

	hub.Broadcast(NewMessage("donation", "proposed", 42, map[string]any{"donor_user_id": float64(3)}))

	for _, c := range []*Client{anon, member} {
		got := receive(t, c)
		if got.Type != "donation_proposed" || got.ID != 42 {
			t.Errorf("got %+v", got)
		}
	}
}

func TestSendToTargetsOneAccount(t *testing.T) {
	hub := NewHub(slog.Default())
	a1 := mockClient(hub, 1)
	a1Tab := mockClient(hub, 1)
	b := mockClient(hub, 2)
	for _, c := range []*Client{a1, a1Tab, b} {
		hub.Register(c)
	}

	hub.SendTo(1, NewMessage("notification", "created", 9, nil))

	receive(t, a1)
	receive(t, a1Tab)
	select {
	case <-b.send:
		t.Error("account 2 should not receive account 1's message")
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 0)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", int64(i), nil))
	}
	// Dropped, not blocked.
	hub.Broadcast(NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("reward_claim", "used", 5, nil)
	if msg.Type != "reward_claim_used" || msg.Entity != "reward_claim" || msg.Action != "used" || msg.ID != 5 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(account int64) {
			defer wg.Done()
			c := mockClient(hub, account)
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", 0, nil))
			hub.SendTo(account, NewMessage("test", "direct", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
