package ws

import (
	"net/http"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pliu/socialsync/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufSize    = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection. Clients only receive; anything they
// send besides control frames is ignored.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	userID      string
	collections map[models.Collection]bool

	send chan []byte
}

func (c *Client) collectionNames() []string {
	names := make([]string, 0, len(c.collections))
	for col := range c.collections {
		names = append(names, string(col))
	}
	sort.Strings(names)
	return names
}

// ServeWs upgrades the request and registers a client for collections.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string, collections []models.Collection) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("ws: upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:          uuid.NewString(),
		hub:         hub,
		conn:        conn,
		userID:      userID,
		collections: make(map[models.Collection]bool, len(collections)),
		send:        make(chan []byte, sendBufSize),
	}
	for _, c := range collections {
		client.collections[c] = true
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump only exists to process pongs and notice the peer going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("ws: client %s read error: %v", c.id, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
