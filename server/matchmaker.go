package server

import (
	"errors"
	"sync"
	"time"

	"github.com/alejzeis/strangerchat/common"

	log "github.com/sirupsen/logrus"
)

// State is where a connected client sits in the matchmaking lifecycle
type State int

const (
	StateIdle State = iota
	StateSearching
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// ClientSession represents a client connected to the server, for the lifetime of its connection
type ClientSession struct {
	ID          string
	State       State
	ConnectedAt time.Time
}

// Notifier delivers outbound events to connected clients.
// The Matchmaker calls it while holding its lock: Notify must not block and must not call back into the Matchmaker.
// Notifying an id that is no longer connected is a no-op that returns false.
type Notifier interface {
	Notify(id string, event string, data interface{}) bool
}

// ErrAlreadyRegistered is returned by Register for an id that is already connected
var ErrAlreadyRegistered = errors.New("client id already registered")

// Snapshot is a point-in-time copy of the matchmaker's counters
type Snapshot struct {
	Connected    int
	Idle         int
	Searching    int
	Paired       int
	Queue        []string
	MatchesTotal uint64
}

// Matchmaker holds the connected clients, the waiting queue and the pair table.
// Everything is guarded by one mutex so each command runs as a single unit, which keeps an id out of
// the queue and the pair table at the same time and keeps the pair table symmetric.
type Matchmaker struct {
	sessions map[string]*ClientSession
	queue    waitingQueue
	pairs    pairTable
	mutex    sync.Mutex

	notifier   Notifier
	moderation ModerationSink

	matchesTotal uint64
}

// NewMatchmaker creates an empty matchmaker. A nil moderation sink logs reports.
func NewMatchmaker(notifier Notifier, moderation ModerationSink) *Matchmaker {
	if moderation == nil {
		moderation = LogModerationSink{}
	}

	return &Matchmaker{
		sessions:   make(map[string]*ClientSession),
		pairs:      make(pairTable),
		notifier:   notifier,
		moderation: moderation,
	}
}

// Register adds a newly connected client in the idle state
func (mm *Matchmaker) Register(id string) error {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if _, exists := mm.sessions[id]; exists {
		return ErrAlreadyRegistered
	}

	mm.sessions[id] = &ClientSession{
		ID:          id,
		State:       StateIdle,
		ConnectedAt: time.Now(),
	}
	return nil
}

// Unregister removes a disconnected client from every structure. If it was paired, its partner is
// returned to idle and told with partner_disconnected. Unregistering an unknown id does nothing.
func (mm *Matchmaker) Unregister(id string) (string, bool) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	session, exists := mm.sessions[id]
	if !exists {
		return "", false
	}

	mm.queue.dequeue(id)
	partner, wasPaired := mm.pairs.unpair(id)
	delete(mm.sessions, id)

	fields := log.Fields{
		"id":        id,
		"state":     session.State.String(),
		"connected": time.Since(session.ConnectedAt).Round(time.Millisecond).String(),
	}
	if wasPaired {
		mm.setState(partner, StateIdle)
		mm.notify(partner, common.EventPartnerDisconnected, nil)
		fields["partner"] = partner
	}
	log.WithFields(fields).Debug("Client unregistered")

	return partner, wasPaired
}

// StartSearching puts an idle client in the waiting queue and tries to match it.
// Clients already searching or paired are left alone.
func (mm *Matchmaker) StartSearching(id string) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if _, exists := mm.sessions[id]; !exists {
		return
	}
	if !mm.enqueueLocked(id) {
		log.WithField("id", id).Debug("Ignoring start_searching from a client already searching or paired")
	}
}

// StopSearching takes a client out of the waiting queue and acknowledges with search_stopped.
// Paired clients are not affected.
func (mm *Matchmaker) StopSearching(id string) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if _, exists := mm.sessions[id]; !exists {
		return
	}
	if _, paired := mm.pairs.partnerOf(id); paired {
		log.WithField("id", id).Debug("Ignoring stop_searching from a paired client")
		return
	}

	mm.queue.dequeue(id)
	mm.setState(id, StateIdle)
	mm.notify(id, common.EventSearchStopped, nil)
}

// Skip leaves the current partner, who goes idle and receives partner_skipped, and puts the skipping
// client straight back in the queue. Skipping while idle starts a search; skipping while searching does nothing.
func (mm *Matchmaker) Skip(id string) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if _, exists := mm.sessions[id]; !exists {
		return
	}

	if partner, wasPaired := mm.pairs.unpair(id); wasPaired {
		mm.setState(id, StateIdle)
		mm.setState(partner, StateIdle)
		mm.notify(partner, common.EventPartnerSkipped, nil)

		log.WithFields(log.Fields{
			"id":      id,
			"partner": partner,
		}).Info("Client skipped partner")
	}

	mm.enqueueLocked(id)
}

// EndChat ends the current pairing. Both clients go idle, the partner receives chat_ended and
// neither is queued again.
func (mm *Matchmaker) EndChat(id string) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if partner, ended := mm.endLocked(id); ended {
		log.WithFields(log.Fields{
			"id":      id,
			"partner": partner,
		}).Info("Chat ended")
	}
}

// Report hands a report about targetID to the moderation sink and ends the reporter's current chat
// the same way EndChat does.
func (mm *Matchmaker) Report(reporterID, targetID, reason string) {
	mm.mutex.Lock()

	if _, exists := mm.sessions[reporterID]; !exists {
		mm.mutex.Unlock()
		return
	}

	partner, _ := mm.endLocked(reporterID)
	mm.mutex.Unlock()

	report := Report{
		ReporterID: reporterID,
		TargetID:   targetID,
		PartnerID:  partner,
		Reason:     reason,
		ReportedAt: time.Now().UTC(),
	}
	log.WithFields(log.Fields{
		"reporter": reporterID,
		"target":   targetID,
		"partner":  partner,
	}).Info("Client reported")

	mm.moderation.Submit(report)
}

// IsRegistered reports whether id belongs to a connected client
func (mm *Matchmaker) IsRegistered(id string) bool {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	_, exists := mm.sessions[id]
	return exists
}

// PartnerOf returns the id a client is currently paired with
func (mm *Matchmaker) PartnerOf(id string) (string, bool) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	return mm.pairs.partnerOf(id)
}

// StateOf returns the lifecycle state of a connected client
func (mm *Matchmaker) StateOf(id string) (State, bool) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	session, exists := mm.sessions[id]
	if !exists {
		return StateIdle, false
	}
	return session.State, true
}

// Snapshot returns the current counts of clients per state and the waiting queue in FIFO order
func (mm *Matchmaker) Snapshot() Snapshot {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	snap := Snapshot{
		Connected:    len(mm.sessions),
		Queue:        mm.queue.snapshot(),
		MatchesTotal: mm.matchesTotal,
	}
	for _, session := range mm.sessions {
		switch session.State {
		case StateIdle:
			snap.Idle++
		case StateSearching:
			snap.Searching++
		case StatePaired:
			snap.Paired++
		}
	}
	return snap
}

// canRelay reports whether a payload from source may be delivered to target: the target must be
// connected and, when partnerOnly is set, be the source's current partner
func (mm *Matchmaker) canRelay(source, target string, partnerOnly bool) bool {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if _, exists := mm.sessions[target]; !exists {
		return false
	}
	if partnerOnly {
		partner, paired := mm.pairs.partnerOf(source)
		return paired && partner == target
	}
	return true
}

// enqueueLocked queues id unless it is already queued or paired, then drains the queue
func (mm *Matchmaker) enqueueLocked(id string) bool {
	if _, paired := mm.pairs.partnerOf(id); paired {
		return false
	}
	if !mm.queue.enqueue(id) {
		return false
	}

	mm.setState(id, StateSearching)
	mm.notify(id, common.EventSearching, nil)
	mm.tryMatchLocked()
	return true
}

// tryMatchLocked pairs the two oldest queued clients until fewer than two remain
func (mm *Matchmaker) tryMatchLocked() {
	for mm.queue.len() >= 2 {
		first, _ := mm.queue.popFront()
		second, _ := mm.queue.popFront()

		mm.pairs.pair(first, second)
		mm.setState(first, StatePaired)
		mm.setState(second, StatePaired)
		mm.matchesTotal++

		mm.notify(first, common.EventMatched, common.MatchedEvent{PartnerID: second})
		mm.notify(second, common.EventMatched, common.MatchedEvent{PartnerID: first})

		log.WithFields(log.Fields{
			"first":  first,
			"second": second,
		}).Info("Matched clients")
	}
}

// endLocked unpairs id, returning both sides to idle and sending chat_ended to the partner
func (mm *Matchmaker) endLocked(id string) (string, bool) {
	partner, wasPaired := mm.pairs.unpair(id)
	if !wasPaired {
		return "", false
	}

	mm.setState(id, StateIdle)
	mm.setState(partner, StateIdle)
	mm.notify(partner, common.EventChatEnded, nil)
	return partner, true
}

func (mm *Matchmaker) setState(id string, state State) {
	if session, exists := mm.sessions[id]; exists {
		session.State = state
	}
}

func (mm *Matchmaker) notify(id string, event string, data interface{}) {
	if mm.notifier == nil {
		return
	}
	if !mm.notifier.Notify(id, event, data) {
		log.WithFields(log.Fields{
			"id":    id,
			"event": event,
		}).Debug("Dropped notification for a client that is no longer connected")
	}
}
