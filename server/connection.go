package server

import (
	"net/http"

	"github.com/alejzeis/strangerchat/common"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Upgrades a request on /ws and runs the connection until either side closes it
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		log.WithField("address", r.RemoteAddr).WithError(err).Debug("Websocket upgrade failed")
		return
	}

	conn := common.NewWebsocketMessageConnection(ws, common.WebsocketOptions{
		ReadLimit:    s.config.MaxMessageBytes,
		WriteTimeout: s.config.WriteTimeout,
		PongTimeout:  s.config.PongTimeout,
	})
	s.serveConnection(conn, r.RemoteAddr)
}

// serveConnection registers a new client under a fresh id, feeds its frames to dispatch and
// unregisters it once the connection is gone
func (s *Server) serveConnection(conn common.MessageConnection, address string) {
	id := uuid.NewString()
	client := newConnectedClient(id, conn, s.config.SendQueueSize)

	s.hub.add(client)
	if err := s.matchmaker.Register(id); err != nil {
		log.WithField("id", id).WithError(err).Error("Failed to register client")
		s.hub.remove(client)
		client.close(websocket.CloseInternalServerErr, "registration failed")
		return
	}

	log.WithFields(log.Fields{
		"id":      id,
		"address": address,
	}).Info("Client connected")

	s.hub.Notify(id, common.EventConnected, common.ConnectedEvent{ID: id})
	go client.writePump(s.config.PingInterval)

	var limiter *rate.Limiter
	if s.config.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.MessagesPerSecond), s.config.MessageBurst)
	}

	for {
		data, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.WithField("id", id).WithError(err).Debug("Connection closed unexpectedly")
			}
			break
		}

		if limiter != nil && !limiter.Allow() {
			log.WithFields(log.Fields{
				"id":      id,
				"address": address,
			}).Warn("Client exceeded message rate, disconnecting")
			client.close(websocket.ClosePolicyViolation, "rate limit exceeded")
			break
		}

		s.dispatch(id, data)
	}

	s.matchmaker.Unregister(id)
	s.hub.remove(client)
	client.close(websocket.CloseNormalClosure, "")

	log.WithFields(log.Fields{
		"id":      id,
		"address": address,
	}).Info("Client disconnected")
}
