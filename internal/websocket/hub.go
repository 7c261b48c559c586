package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/facelessreel/api/internal/model"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans job events out to the clients subscribed to each job
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Broadcast messages to job subscribers
	broadcast chan *BroadcastMessage

	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]bool),
		broadcast: make(chan *BroadcastMessage, 256),
		done:      make(chan struct{}),
	}
}

// Run delivers broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.done:
			return
		}
	}
}

// Stop ends Run and disconnects every client
func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for jobID, clients := range h.clients {
			for client := range clients {
				close(client.Send)
			}
			delete(h.clients, jobID)
		}
	})
}

// deliver drops clients whose send buffer is full
func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[msg.JobID]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.Send <- msg.Message:
		default:
			close(client.Send)
			delete(clients, client)
			log.Printf("Dropped slow client for job %s", msg.JobID)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, msg.JobID)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.JobID] == nil {
		h.clients[client.JobID] = make(map[*Client]bool)
	}
	h.clients[client.JobID][client] = true
	log.Printf("Client registered for job %s", client.JobID)
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.JobID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.clients, client.JobID)
			}
			log.Printf("Client unregistered from job %s", client.JobID)
		}
	}
}

// Subscribers returns the number of clients watching a job
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// sendTo queues data for one client if it is still registered
func (h *Hub) sendTo(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client.JobID][client] {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) publish(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	case <-h.done:
	default:
		log.Printf("Broadcast queue full, dropping message for job %s", jobID)
	}
}

// BroadcastProgress sends a progress update to all job subscribers
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, message string) {
	h.publish(jobID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		JobID:    jobID,
		Progress: progress,
		Status:   status,
		Message:  message,
	})
}

// BroadcastComplete sends a completion message to all job subscribers
func (h *Hub) BroadcastComplete(jobID, videoURL string) {
	h.publish(jobID, model.WSCompleteMessage{
		Type:     model.WSMessageTypeComplete,
		JobID:    jobID,
		VideoURL: videoURL,
	})
}

// BroadcastError sends an error message to all job subscribers
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// statusMessage encodes the snapshot sent when a client subscribes
func statusMessage(view model.JobView) ([]byte, error) {
	return json.Marshal(model.WSStatusMessage{Type: model.WSMessageTypeStatus, Job: view})
}

// HandleConnection serves one subscriber. The snapshot is read after the
// client is registered so no later event can precede it.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, snapshot func() (model.JobView, error)) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	if view, err := snapshot(); err == nil {
		if data, err := statusMessage(view); err == nil {
			h.sendTo(client, data)
		}
	}

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.sendTo(client, data)
		}
	}
}
