package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// pingInterval is how long a client may stay silent before the server
// probes it with a ping event.
const pingInterval = 30 * time.Second

// Client is one websocket subscriber. Writes are serialized because
// broadcasts and the connection's own read loop both send.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(event)
}

// Hub tracks which clients follow which task and broadcasts events to them.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Client]struct{}
	clientTasks map[*Client]string
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		clientTasks: make(map[*Client]string),
	}
}

func (h *Hub) register(conn *websocket.Conn, taskID string) *Client {
	client := &Client{conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[taskID] == nil {
		h.subscribers[taskID] = make(map[*Client]struct{})
	}
	h.subscribers[taskID][client] = struct{}{}
	h.clientTasks[client] = taskID

	slog.Info("websocket subscribed", "task_id", taskID, "subscribers", len(h.subscribers[taskID]))
	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	taskID, ok := h.clientTasks[client]
	if !ok {
		return
	}
	delete(h.subscribers[taskID], client)
	if len(h.subscribers[taskID]) == 0 {
		delete(h.subscribers, taskID)
	}
	delete(h.clientTasks, client)

	slog.Info("websocket unsubscribed", "task_id", taskID)
}

// SubscriberCount reports how many clients follow the given task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[taskID])
}

// Broadcast delivers the event to every subscriber of its task. A failed
// send disconnects that subscriber; the others still receive the event.
func (h *Hub) Broadcast(event Event) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.subscribers[event.TaskID]))
	for c := range h.subscribers[event.TaskID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := client.send(event); err != nil {
			slog.Warn("websocket send failed, dropping subscriber", "task_id", event.TaskID, "error", err)
			h.unregister(client)
			client.conn.Close()
		}
	}
}

// HandleConnection runs one subscriber's session until the connection drops:
// sends the connected event, answers client "ping" text with a pong event,
// and probes silent clients with a server ping.
func (h *Hub) HandleConnection(conn *websocket.Conn, taskID string) {
	client := h.register(conn, taskID)
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	if err := client.send(Event{Type: EventConnected, TaskID: taskID, Message: "connected to update stream"}); err != nil {
		return
	}

	var lastSeen atomic.Int64
	lastSeen.Store(time.Now().UnixNano())

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, lastSeen.Load())) < pingInterval {
					continue
				}
				if err := client.send(Event{Type: EventPing}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		lastSeen.Store(time.Now().UnixNano())

		if string(data) == "ping" {
			if err := client.send(Event{Type: EventPong}); err != nil {
				return
			}
		}
	}
}
