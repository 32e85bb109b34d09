package server

import (
	"sync"
	"time"

	"github.com/alejzeis/strangerchat/common"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// connectedClient is one live connection and its bounded queue of outbound frames
type connectedClient struct {
	id   string
	conn common.MessageConnection

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnectedClient(id string, conn common.MessageConnection, queueSize int) *connectedClient {
	return &connectedClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the write loop without blocking. A client whose queue is full is
// disconnected rather than allowed to stall the sender.
func (client *connectedClient) enqueue(frame []byte) bool {
	select {
	case <-client.done:
		return false
	default:
	}

	select {
	case client.send <- frame:
		return true
	case <-client.done:
		return false
	default:
		log.WithField("id", client.id).Warn("Send queue full, disconnecting slow client")
		client.close(websocket.ClosePolicyViolation, "send queue full")
		return false
	}
}

// writePump owns every write to the connection until the client is closed
func (client *connectedClient) writePump(pingInterval time.Duration) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame := <-client.send:
			if err := client.conn.WriteMessage(frame); err != nil {
				log.WithField("id", client.id).WithError(err).Debug("Failed to write to client")
				client.close(websocket.CloseInternalServerErr, "")
				return
			}
		case <-ping:
			if err := client.conn.Ping(); err != nil {
				client.close(websocket.CloseGoingAway, "")
				return
			}
		case <-client.done:
			return
		}
	}
}

// close stops the write loop and closes the connection, which also ends the read loop.
// The close frame is written in the background since close may run under the matchmaker lock.
func (client *connectedClient) close(code int, reason string) {
	client.closeOnce.Do(func() {
		close(client.done)
		go func() {
			_ = client.conn.CloseWithMessage(code, reason)
		}()
	})
}

// hub tracks live connections by id and implements Notifier for the matchmaker and relay
type hub struct {
	clients map[string]*connectedClient
	mutex   sync.RWMutex
}

func newHub() *hub {
	return &hub{
		clients: make(map[string]*connectedClient),
	}
}

func (h *hub) add(client *connectedClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client.id] = client
}

func (h *hub) remove(client *connectedClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[client.id] == client {
		delete(h.clients, client.id)
	}
}

func (h *hub) get(id string) *connectedClient {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.clients[id]
}

// closeAll disconnects every client, used on shutdown since hijacked connections outlive the HTTP server
func (h *hub) closeAll() {
	h.mutex.RLock()
	clients := make([]*connectedClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *hub) Notify(id string, event string, data interface{}) bool {
	client := h.get(id)
	if client == nil {
		return false
	}

	frame, err := common.EncodeEnvelope(event, data)
	if err != nil {
		log.WithFields(log.Fields{
			"id":    id,
			"event": event,
		}).WithError(err).Error("Failed to encode event")
		return false
	}

	return client.enqueue(frame)
}
