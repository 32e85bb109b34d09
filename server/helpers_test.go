package server

import (
	"sync"
)

type notification struct {
	Event string
	Data  interface{}
}

// recordingNotifier remembers every notification per id. Ids marked gone are treated as disconnected.
type recordingNotifier struct {
	mutex  sync.Mutex
	events map[string][]notification
	gone   map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		events: make(map[string][]notification),
		gone:   make(map[string]bool),
	}
}

func (n *recordingNotifier) Notify(id string, event string, data interface{}) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.gone[id] {
		return false
	}
	n.events[id] = append(n.events[id], notification{Event: event, Data: data})
	return true
}

func (n *recordingNotifier) markGone(id string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.gone[id] = true
}

func (n *recordingNotifier) eventsFor(id string) []notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	out := make([]notification, len(n.events[id]))
	copy(out, n.events[id])
	return out
}

func (n *recordingNotifier) namesFor(id string) []string {
	var names []string
	for _, event := range n.eventsFor(id) {
		names = append(names, event.Event)
	}
	return names
}

func (n *recordingNotifier) reset() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.events = make(map[string][]notification)
}

type recordingSink struct {
	mutex   sync.Mutex
	reports []Report
}

func (s *recordingSink) Submit(report Report) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reports = append(s.reports, report)
}

func (s *recordingSink) all() []Report {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}
