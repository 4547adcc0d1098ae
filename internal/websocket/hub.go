package websocket

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"crew-staffing/internal/auth"
	"crew-staffing/internal/models"
	"crew-staffing/internal/service"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CampaignEvent is the message pushed to subscribers
type CampaignEvent struct {
	Type     string           `json:"type"`
	Campaign *models.Campaign `json:"campaign"`
}

type client struct {
	conn   *websocket.Conn
	caller models.Caller
	// campaignID limits delivery to one campaign when set
	campaignID string
	writeMu    sync.Mutex
}

func (c *client) send(event CampaignEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

// Hub manages WebSocket subscribers and broadcasts campaign changes.
// Subscribers only receive campaigns of departments they may manage.
type Hub struct {
	verifier  *auth.Verifier
	clients   map[*client]bool
	clientsMu sync.Mutex
}

// NewHub creates a new hub
func NewHub(verifier *auth.Verifier) *Hub {
	return &Hub{
		verifier: verifier,
		clients:  make(map[*client]bool),
	}
}

// ServeWS authenticates the request, then upgrades it and subscribes the
// connection. Browsers that cannot set headers may pass the credential as
// the access_token query parameter. The optional campaign_id query
// parameter filters the stream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, err := h.authenticate(r)
	if err != nil {
		log.Printf("[WEBSOCKET] Rejected connection: %v", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] WebSocket upgrade failed: %v", err)
		return
	}
	h.addClient(&client{conn: conn, caller: caller, campaignID: r.URL.Query().Get("campaign_id")})
}

func (h *Hub) authenticate(r *http.Request) (models.Caller, error) {
	caller, err := h.verifier.FromRequest(r)
	if errors.Is(err, auth.ErrMissingToken) {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return h.verifier.Verify(token)
		}
	}
	return caller, err
}

func (h *Hub) addClient(c *client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.clientsMu.Unlock()

	log.Printf("[WEBSOCKET] Client connected. Total clients: %d", total)

	go func() {
		defer h.removeClient(c)
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) removeClient(c *client) {
	h.clientsMu.Lock()
	delete(h.clients, c)
	total := len(h.clients)
	h.clientsMu.Unlock()

	c.conn.Close()
	log.Printf("[WEBSOCKET] Client disconnected. Total clients: %d", total)
}

// CampaignUpdated broadcasts the campaign to subscribers allowed to see it
func (h *Hub) CampaignUpdated(campaign *models.Campaign) {
	if campaign == nil {
		return
	}
	event := CampaignEvent{Type: "campaign_updated", Campaign: campaign}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		if c.campaignID != "" && c.campaignID != campaign.ID {
			continue
		}
		if service.Authorize(c.caller, campaign.Department) != nil {
			continue
		}
		go func(c *client) {
			if err := c.send(event); err != nil {
				log.Printf("[ERROR] Failed to send WebSocket update: %v", err)
			}
		}(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}
