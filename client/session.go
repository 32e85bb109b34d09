package client

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/alejzeis/strangerchat/common"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	errNotPaired   = errors.New("you are not chatting with anyone")
	errEmptyChat   = errors.New("nothing to send")
	errSessionDone = errors.New("disconnected from server")
)

type sessionState uint8

const (
	sessionIdle sessionState = iota
	sessionSearching
	sessionPaired
)

func (s sessionState) String() string {
	switch s {
	case sessionIdle:
		return "idle"
	case sessionSearching:
		return "searching"
	case sessionPaired:
		return "chatting"
	default:
		return "unknown"
	}
}

// chatSession is one websocket connection to the server. It mirrors the server's view of our
// state from the events it receives and turns REPL commands into outbound events.
type chatSession struct {
	conn    common.MessageConnection
	display display

	mutex     sync.Mutex
	selfID    string
	partnerID string
	state     sessionState

	done chan struct{}
}

func newChatSession(conn common.MessageConnection, display display) *chatSession {
	return &chatSession{
		conn:    conn,
		display: display,
		done:    make(chan struct{}),
	}
}

// run reads events until the connection closes
func (s *chatSession) run() {
	defer close(s.done)

	for {
		data, _, err := s.conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Session read loop finished")
			s.mutex.Lock()
			s.partnerID = ""
			s.state = sessionIdle
			s.mutex.Unlock()
			s.display.Warning("Disconnected from server")
			return
		}

		env, err := common.DecodeEnvelope(data)
		if err != nil {
			log.WithError(err).Debug("Ignoring malformed frame from server")
			continue
		}
		s.handle(env)
	}
}

func (s *chatSession) handle(env common.Envelope) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch env.Event {
	case common.EventConnected:
		var greeting common.ConnectedEvent
		if err := env.Decode(&greeting); err == nil {
			s.selfID = greeting.ID
			log.WithField("id", s.selfID).Debug("Received id from server")
		}
	case common.EventSearching:
		s.state = sessionSearching
		s.display.Info("Looking for a stranger...")
	case common.EventSearchStopped:
		s.state = sessionIdle
		s.display.Info("Stopped looking")
	case common.EventMatched:
		var matched common.MatchedEvent
		if err := env.Decode(&matched); err != nil {
			log.WithError(err).Debug("Ignoring malformed matched event")
			return
		}
		s.partnerID = matched.PartnerID
		s.state = sessionPaired
		s.display.Success("You're now chatting with a stranger. Say hi!")
	case common.EventReceiveMessage:
		var msg common.ReceiveMessageEvent
		if err := env.Decode(&msg); err != nil {
			log.WithError(err).Debug("Ignoring malformed chat message")
			return
		}
		s.display.Chat("Stranger", messageText(msg.Message))
	case common.EventPartnerSkipped:
		s.partnerID = ""
		s.state = sessionIdle
		s.display.Warning("The stranger skipped you. Type start to find someone new")
	case common.EventPartnerDisconnected:
		s.partnerID = ""
		s.state = sessionIdle
		s.display.Warning("The stranger disconnected. Type start to find someone new")
	case common.EventChatEnded:
		s.partnerID = ""
		s.state = sessionIdle
		s.display.Info("The stranger ended the chat")
	case common.EventOffer, common.EventAnswer, common.EventICECandidate:
		log.WithField("event", env.Event).Debug("Ignoring media negotiation, this client is text only")
	default:
		log.WithField("event", env.Event).Debug("Ignoring unknown event")
	}
}

// messageText renders a chat payload. Browsers send plain strings; anything else is shown as raw JSON.
func messageText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func (s *chatSession) send(event string, data interface{}) error {
	select {
	case <-s.done:
		return errSessionDone
	default:
	}

	frame, err := common.EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(frame)
}

func (s *chatSession) startSearching() error {
	return s.send(common.EventStartSearching, nil)
}

func (s *chatSession) stopSearching() error {
	return s.send(common.EventStopSearching, nil)
}

// skip leaves the current stranger and looks for the next one. The server answers with searching.
func (s *chatSession) skip() error {
	s.mutex.Lock()
	if s.state == sessionPaired {
		s.partnerID = ""
		s.state = sessionIdle
	}
	s.mutex.Unlock()

	return s.send(common.EventSkip, nil)
}

// endChat leaves the current stranger without looking for another. The server sends us nothing back.
func (s *chatSession) endChat() error {
	s.mutex.Lock()
	if s.state != sessionPaired {
		s.mutex.Unlock()
		return errNotPaired
	}
	s.partnerID = ""
	s.state = sessionIdle
	s.mutex.Unlock()

	if err := s.send(common.EventEndChat, nil); err != nil {
		return err
	}
	s.display.Info("You ended the chat")
	return nil
}

func (s *chatSession) say(text string) error {
	if text == "" {
		return errEmptyChat
	}

	partner := s.partner()
	if partner == "" {
		return errNotPaired
	}

	message, err := json.Marshal(text)
	if err != nil {
		return err
	}
	if err := s.send(common.EventSendMessage, common.RelayRequest{Target: partner, Message: message}); err != nil {
		return err
	}
	s.display.Chat("You", text)
	return nil
}

// report reports the current stranger, which also ends the chat
func (s *chatSession) report(reason string) error {
	s.mutex.Lock()
	partner := s.partnerID
	if partner == "" {
		s.mutex.Unlock()
		return errNotPaired
	}
	s.partnerID = ""
	s.state = sessionIdle
	s.mutex.Unlock()

	if err := s.send(common.EventReportUser, common.ReportRequest{TargetID: partner, Reason: reason}); err != nil {
		return err
	}
	s.display.Info("Stranger reported, chat ended")
	return nil
}

func (s *chatSession) partner() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.partnerID
}

func (s *chatSession) currentState() sessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state
}

func (s *chatSession) id() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.selfID
}

// close ends the session and waits for the read loop to exit
func (s *chatSession) close() {
	_ = s.conn.CloseWithMessage(websocket.CloseNormalClosure, "")
	<-s.done
}
