package watcher

import (
	"os"
	"sort"
)

type EventType string

const (
	CREATED  EventType = "created"
	MODIFIED EventType = "modified"
	DELETED  EventType = "deleted"
)

type Event struct {
	Path      string
	EventType EventType
	Info      os.FileInfo
}

// Events holds the latest event per path seen since the last batch was taken
type Events struct {
	events map[string]Event
}

func newEventBatch() *Events {
	return &Events{events: make(map[string]Event)}
}

func (e *Events) addEvent(path string, eventType EventType, info os.FileInfo) {
	// A file created and then written within one batch is still new
	if previous, found := e.events[path]; found && previous.EventType == CREATED && eventType == MODIFIED {
		eventType = CREATED
	}

	e.events[path] = Event{Path: path, EventType: eventType, Info: info}
}

// Events returns the batch ordered by path
func (e *Events) Events() []Event {
	events := make([]Event, 0, len(e.events))
	for _, event := range e.events {
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

func (e *Events) Len() int {
	return len(e.events)
}
