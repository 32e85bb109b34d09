package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/alejzeis/strangerchat/common"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Server wires the matchmaker and relay to the websocket endpoint and the REST control surface
type Server struct {
	config     *Config
	matchmaker *Matchmaker
	relay      *Relay
	hub        *hub

	upgrader websocket.Upgrader
	router   *mux.Router

	infoResponseJSON []byte // Cached bytes of the JSON for the /info response
}

// NewServer builds a server from config. Reports go to the moderation webhook when one is configured.
func NewServer(config *Config) *Server {
	s := &Server{
		config: config,
		hub:    newHub(),
	}

	var moderation ModerationSink = LogModerationSink{}
	if config.ModerationWebhookURL != "" {
		moderation = NewWebhookModerationSink(config.ModerationWebhookURL, config.ModerationSecret, config.ModerationTimeout)
	}

	s.matchmaker = NewMatchmaker(s.hub, moderation)
	s.relay = NewRelay(s.matchmaker, s.hub, config.PartnerOnlyRelay)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.infoResponseJSON, _ = json.Marshal(common.InfoResponse{
		Software: common.SoftwareName,
		Version:  common.SoftwareVersion,
		API:      common.APIVersion,
	})

	router := mux.NewRouter().StrictSlash(true)
	router.Use(s.corsMiddleware)
	router.HandleFunc("/info", s.handleInfo).Methods("GET")
	router.HandleFunc("/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/ice-servers", s.handleICEServers).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/ws", s.handleWebsocket).Methods("GET")
	s.router = router

	return s
}

// Router is the HTTP handler serving every endpoint
func (s *Server) Router() http.Handler {
	return s.router
}

// Matchmaker exposes the server's matchmaker
func (s *Server) Matchmaker() *Matchmaker {
	return s.matchmaker
}

// ListenAndServe serves on the configured port until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	log.WithField("address", listener.Addr().String()).Info("Server listening")

	select {
	case err := <-errCh:
		s.hub.closeAll()
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	s.hub.closeAll()
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// Stats gathers the counters reported by /stats
func (s *Server) Stats() common.StatsResponse {
	snap := s.matchmaker.Snapshot()
	return common.StatsResponse{
		Connected:    snap.Connected,
		Idle:         snap.Idle,
		Searching:    snap.Searching,
		Paired:       snap.Paired,
		Queued:       len(snap.Queue),
		MatchesTotal: snap.MatchesTotal,
		RelayedTotal: s.relay.Relayed(),
		DroppedTotal: s.relay.Dropped(),
	}
}

// Returns server information such as the software version and API version
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.infoResponseJSON)
}

// Returns how many clients are connected, searching and paired, plus relay counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Stats())
}

// Returns the STUN/TURN servers browsers should use for their peer connections
func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, common.ICEServersResponse{IceServers: s.config.ICEServers})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).Error("Failed to encode response json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// originAllowed reports whether a browser origin may use the server. Requests without an Origin
// header come from non-browser clients and are always allowed.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if s.originAllowed(origin) {
		return true
	}
	log.WithFields(log.Fields{
		"origin":  origin,
		"address": r.RemoteAddr,
	}).Warn("Rejected websocket from disallowed origin")
	return false
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}
