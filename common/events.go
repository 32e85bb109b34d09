package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Events sent by clients to the server
const (
	EventStartSearching = "start_searching"
	EventStopSearching  = "stop_searching"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "ice_candidate"
	EventSendMessage    = "send_message"
	EventSkip           = "skip"
	EventEndChat        = "end_chat"
	EventReportUser     = "report_user"
)

// Events sent by the server to clients. offer, answer and ice_candidate share their names with the inbound events.
const (
	EventConnected           = "connected"
	EventSearching           = "searching"
	EventSearchStopped       = "search_stopped"
	EventMatched             = "matched"
	EventReceiveMessage      = "receive_message"
	EventPartnerSkipped      = "partner_skipped"
	EventPartnerDisconnected = "partner_disconnected"
	EventChatEnded           = "chat_ended"
)

var (
	// ErrEmptyEvent is returned when a frame decodes but carries no event name
	ErrEmptyEvent = errors.New("envelope has no event name")
	// ErrMissingTarget is returned when a relay request does not name a target
	ErrMissingTarget = errors.New("request has no target")
)

// Envelope is the JSON frame exchanged over the websocket in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an Envelope, marshalling data unless it is nil
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// EncodeEnvelope builds an Envelope and returns its wire representation
func EncodeEnvelope(event string, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a frame. It does not look at Data; use Envelope.Decode for that.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}
	return env, nil
}

// Decode unmarshals the envelope's Data into out. A missing or null Data leaves out untouched.
func (env Envelope) Decode(out interface{}) error {
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Event, err)
	}
	return nil
}

// RelayRequest is the shared shape of offer, answer, ice_candidate and send_message. Only the field
// belonging to the event is populated; payloads are kept as raw JSON and never inspected.
type RelayRequest struct {
	Target    string          `json:"target"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// Validate checks the request names a target
func (r RelayRequest) Validate() error {
	if r.Target == "" {
		return ErrMissingTarget
	}
	return nil
}

// ReportRequest is the payload of report_user
type ReportRequest struct {
	TargetID string `json:"targetId"`
	Reason   string `json:"reason"`
}

// ConnectedEvent greets a new connection with the id other clients will know it by
type ConnectedEvent struct {
	ID string `json:"id"`
}

// MatchedEvent tells a client who it was paired with
type MatchedEvent struct {
	PartnerID string `json:"partnerId"`
}

// OfferEvent is a relayed SDP offer
type OfferEvent struct {
	Source string          `json:"source"`
	Offer  json.RawMessage `json:"offer"`
}

// AnswerEvent is a relayed SDP answer
type AnswerEvent struct {
	Source string          `json:"source"`
	Answer json.RawMessage `json:"answer"`
}

// ICECandidateEvent is a relayed ICE candidate
type ICECandidateEvent struct {
	Source    string          `json:"source"`
	Candidate json.RawMessage `json:"candidate"`
}

// ReceiveMessageEvent is a relayed chat message stamped by the server
type ReceiveMessageEvent struct {
	Source    string          `json:"source"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}
