package server

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/alejzeis/strangerchat/common"

	log "github.com/sirupsen/logrus"
)

// RelayKind is one of the payload kinds the relay forwards between clients
type RelayKind int

const (
	RelayOffer RelayKind = iota
	RelayAnswer
	RelayICECandidate
	RelayChatMessage
)

func (kind RelayKind) String() string {
	switch kind {
	case RelayOffer:
		return "offer"
	case RelayAnswer:
		return "answer"
	case RelayICECandidate:
		return "ice_candidate"
	case RelayChatMessage:
		return "chat_message"
	default:
		return "unknown"
	}
}

// outbound returns the event name and payload delivered to the target for this kind
func (kind RelayKind) outbound(source string, payload json.RawMessage, now time.Time) (string, interface{}, bool) {
	switch kind {
	case RelayOffer:
		return common.EventOffer, common.OfferEvent{Source: source, Offer: payload}, true
	case RelayAnswer:
		return common.EventAnswer, common.AnswerEvent{Source: source, Answer: payload}, true
	case RelayICECandidate:
		return common.EventICECandidate, common.ICECandidateEvent{Source: source, Candidate: payload}, true
	case RelayChatMessage:
		return common.EventReceiveMessage, common.ReceiveMessageEvent{Source: source, Message: payload, Timestamp: now}, true
	default:
		return "", nil, false
	}
}

// Relay forwards signaling and chat payloads from one client to another, untouched.
// Messages for a target that is not connected are dropped without telling the sender.
type Relay struct {
	matchmaker  *Matchmaker
	notifier    Notifier
	partnerOnly bool

	relayed atomic.Uint64
	dropped atomic.Uint64
}

// NewRelay creates a relay looking targets up in matchmaker. With partnerOnly set, a client may only
// reach its current partner.
func NewRelay(matchmaker *Matchmaker, notifier Notifier, partnerOnly bool) *Relay {
	return &Relay{
		matchmaker:  matchmaker,
		notifier:    notifier,
		partnerOnly: partnerOnly,
	}
}

// Forward delivers payload from source to target, reporting whether it was handed to the target's connection
func (relay *Relay) Forward(kind RelayKind, source string, target string, payload json.RawMessage) bool {
	fields := log.Fields{
		"kind":   kind.String(),
		"source": source,
		"target": target,
	}

	event, data, ok := kind.outbound(source, payload, time.Now().UTC())
	if !ok || !relay.matchmaker.canRelay(source, target, relay.partnerOnly) {
		relay.dropped.Add(1)
		log.WithFields(fields).Debug("Dropped relay to an unreachable target")
		return false
	}

	// The target can disconnect between the lookup and delivery; the notifier treats that as a drop.
	if !relay.notifier.Notify(target, event, data) {
		relay.dropped.Add(1)
		log.WithFields(fields).Debug("Dropped relay, target disconnected")
		return false
	}

	relay.relayed.Add(1)
	log.WithFields(fields).Trace("Relayed payload")
	return true
}

// Relayed is the number of payloads delivered so far
func (relay *Relay) Relayed() uint64 {
	return relay.relayed.Load()
}

// Dropped is the number of payloads discarded so far
func (relay *Relay) Dropped() uint64 {
	return relay.dropped.Load()
}
