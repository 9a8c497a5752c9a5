package ws

import (
	"encoding/json"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/models"
)

type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Committed records to fan out.
	broadcast chan models.Record

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Count requests, answered from inside the loop.
	count chan chan map[models.Collection]int
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan models.Record, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan map[models.Collection]int),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			glog.V(1).Infof("ws: client %s (user %s) subscribed to %v", client.id, client.userID, client.collectionNames())
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case record := <-h.broadcast:
			for client := range h.clients {
				if !client.collections[record.Collection()] {
					continue
				}
				env, err := models.Encode(models.Redact(record, client.userID))
				if err != nil {
					glog.Errorf("ws: encoding %s/%s: %v", record.Collection(), record.RecordID(), err)
					continue
				}
				msgBytes, _ := json.Marshal(env)

				select {
				case client.send <- msgBytes:
				default:
					glog.Warningf("ws: dropping slow client %s", client.id)
					close(client.send)
					delete(h.clients, client)
				}
			}
		case reply := <-h.count:
			counts := make(map[models.Collection]int)
			for client := range h.clients {
				for c := range client.collections {
					counts[c]++
				}
			}
			reply <- counts
		}
	}
}

// Broadcast queues a committed record for every client subscribed to its
// collection.
func (h *Hub) Broadcast(record models.Record) {
	h.broadcast <- record
}

// Subscribers reports how many connected clients watch each collection.
func (h *Hub) Subscribers() map[models.Collection]int {
	reply := make(chan map[models.Collection]int)
	h.count <- reply
	return <-reply
}
