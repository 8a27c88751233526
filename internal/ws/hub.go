package ws

import (
	"encoding/json"
	"sync"
	"time"

	"jobfeed/internal/domain/feed"

	"go.uber.org/zap"
)

// FeedUpdateEvent is the wire shape pushed to connected clients whenever a
// feed item is published or rescored.
type FeedUpdateEvent struct {
	Type       string `json:"type"`
	FeedItemID string `json:"feed_item_id"`
	EventType  string `json:"event_type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Score      string `json:"score"`
	Timestamp  string `json:"timestamp"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("ws client connected", zap.Int("total_clients", total))

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("ws client disconnected", zap.Int("total_clients", total))

		case message := <-h.broadcast:
			h.mutex.RLock()
			snapshot := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				snapshot = append(snapshot, c)
			}
			h.mutex.RUnlock()

			for _, client := range snapshot {
				select {
				case client.send <- message:
				default:
					h.unregister <- client
				}
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	if h == nil {
		return
	}
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	if h == nil {
		return
	}
	h.unregister <- client
}

func (h *Hub) Broadcast(message []byte) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("ws broadcast dropped, buffer full")
	}
}

func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// FeedItemPublished pushes a live update to every connected client. The hub
// is the publisher's Notifier; delivery is best-effort.
func (h *Hub) FeedItemPublished(item feed.Item) {
	if h == nil {
		return
	}
	evt := FeedUpdateEvent{
		Type:       "feed_updated",
		FeedItemID: item.ID.String(),
		EventType:  string(item.EventType),
		EntityKind: string(item.Subject.Kind),
		EntityID:   item.Subject.ID.String(),
		Score:      item.Score.String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.Broadcast(b)
}
