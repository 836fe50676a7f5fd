package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"conversa/internal/models"
)

type mockWS struct {
	readCh      chan models.ClientMessage
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientMessage, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() {
		m.closed = true
		close(m.closeCh)
	})
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientMessage); ok {
			*ptr = msg
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	joinCh     chan string
	leaveCh    chan string
	dispatchCh chan models.ClientMessage
	// per connection channel
	connChans map[string]chan models.ServerMessage
	mu        sync.Mutex
}

func newMockHub() *mockHub {
	return &mockHub{
		joinCh:     make(chan string, 10),
		leaveCh:    make(chan string, 10),
		dispatchCh: make(chan models.ClientMessage, 10),
		connChans:  make(map[string]chan models.ServerMessage),
	}
}

func (m *mockHub) Join(userID, token string) (string, chan models.ServerMessage) {
	m.joinCh <- userID
	ch := make(chan models.ServerMessage, 10)
	m.mu.Lock()
	m.connChans["conn-"+userID] = ch
	m.mu.Unlock()
	return "conn-" + userID, ch
}

func (m *mockHub) Leave(connID string) {
	m.leaveCh <- connID
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.connChans[connID]; ok {
		close(ch)
		delete(m.connChans, connID)
	}
}

func (m *mockHub) Dispatch(_ context.Context, connID string, msg models.ClientMessage) {
	m.dispatchCh <- msg
}

func (m *mockHub) push(connID string, msg models.ServerMessage) {
	m.mu.Lock()
	ch := m.connChans[connID]
	m.mu.Unlock()
	ch <- msg
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	userID := "user1"

	conn := NewConnection(hub, ws, userID, "token")
	if conn == nil {
		t.Fatal("NewConnection returned nil")
	}

	select {
	case id := <-hub.joinCh:
		if id != userID {
			t.Errorf("Expected Join with %s, got %s", userID, id)
		}
	default:
		t.Error("Join not called on NewConnection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// Client -> Hub
	clientMsg := models.ClientMessage{
		Type:     models.ClientMessageTypeSubscribe,
		TenantID: "acme",
	}
	ws.readCh <- clientMsg

	select {
	case received := <-hub.dispatchCh:
		if received != clientMsg {
			t.Errorf("Hub received wrong message: %v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Hub did not receive dispatched message")
	}

	// Hub -> Client
	hub.push("conn-"+userID, models.ServerMessage{
		Type:     models.ServerMessageTypeUnread,
		TenantID: "acme",
		Counts:   []models.UnreadCount{{ThreadID: "t1", UnreadCount: 3}},
	})

	select {
	case received := <-ws.writeCh:
		sMsg, ok := received.(models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if len(sMsg.Counts) != 1 || sMsg.Counts[0].UnreadCount != 3 {
			t.Errorf("WS received wrong content: %v", sMsg)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server message")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case id := <-hub.leaveCh:
		if id != "conn-"+userID {
			t.Errorf("Expected Leave with conn-%s, got %s", userID, id)
		}
	default:
		t.Error("Leave not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, "user2", "token")

	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_ServerDisconnect(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, "user3", "token")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	hub.mu.Lock()
	close(hub.connChans["conn-user3"])
	delete(hub.connChans, "conn-user3")
	hub.mu.Unlock()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("Expected ErrDisconnected, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after the hub closed the channel")
	}
}
