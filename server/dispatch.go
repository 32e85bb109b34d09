package server

import (
	"encoding/json"

	"github.com/alejzeis/strangerchat/common"

	log "github.com/sirupsen/logrus"
)

var relayEvents = map[string]RelayKind{
	common.EventOffer:        RelayOffer,
	common.EventAnswer:       RelayAnswer,
	common.EventICECandidate: RelayICECandidate,
	common.EventSendMessage:  RelayChatMessage,
}

// dispatch routes one inbound frame from client id. Anything malformed or unknown is logged and ignored.
func (s *Server) dispatch(id string, frame []byte) {
	env, err := common.DecodeEnvelope(frame)
	if err != nil {
		log.WithField("id", id).WithError(err).Debug("Ignoring malformed frame")
		return
	}

	switch env.Event {
	case common.EventStartSearching:
		s.matchmaker.StartSearching(id)
	case common.EventStopSearching:
		s.matchmaker.StopSearching(id)
	case common.EventSkip:
		s.matchmaker.Skip(id)
	case common.EventEndChat:
		s.matchmaker.EndChat(id)
	case common.EventReportUser:
		var req common.ReportRequest
		if err := env.Decode(&req); err != nil {
			log.WithField("id", id).WithError(err).Debug("Ignoring malformed report")
			return
		}
		s.matchmaker.Report(id, req.TargetID, req.Reason)
	default:
		kind, isRelay := relayEvents[env.Event]
		if !isRelay {
			log.WithFields(log.Fields{
				"id":    id,
				"event": env.Event,
			}).Debug("Ignoring unknown event")
			return
		}
		s.dispatchRelay(id, kind, env)
	}
}

func (s *Server) dispatchRelay(id string, kind RelayKind, env common.Envelope) {
	var req common.RelayRequest
	if err := env.Decode(&req); err != nil {
		log.WithField("id", id).WithError(err).Debug("Ignoring malformed relay request")
		return
	}
	if err := req.Validate(); err != nil {
		log.WithFields(log.Fields{
			"id":    id,
			"event": env.Event,
		}).WithError(err).Debug("Ignoring relay request")
		return
	}

	s.relay.Forward(kind, id, req.Target, relayPayload(kind, req))
}

// relayPayload picks the field of the request that belongs to kind
func relayPayload(kind RelayKind, req common.RelayRequest) json.RawMessage {
	switch kind {
	case RelayOffer:
		return req.Offer
	case RelayAnswer:
		return req.Answer
	case RelayICECandidate:
		return req.Candidate
	case RelayChatMessage:
		return req.Message
	default:
		return nil
	}
}
