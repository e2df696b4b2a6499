package service

import (
	"slices"
	"sync"
)

// Event is one message of a job's progress stream. Exactly one field is set.
type Event struct {
	Progress *int   `json:"progress,omitempty"`
	Log      string `json:"log,omitempty"`
	Done     bool   `json:"done,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Final reports whether no event follows this one.
func (ev Event) Final() bool {
	return ev.Done || ev.Error != ""
}

// eventLog is an append-only list of events that any number of readers can
// follow from their own offset.
type eventLog struct {
	mu      sync.Mutex
	events  []Event
	changed chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{changed: make(chan struct{})}
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	close(l.changed)
	l.changed = make(chan struct{})
}

// since returns the events from offset i on, and a channel that is closed
// when more arrive.
func (l *eventLog) since(i int) ([]Event, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.events) {
		return nil, l.changed
	}
	return slices.Clone(l.events[i:]), l.changed
}
