package event

import (
	"time"
)

// Actions of a StreamEvent
const (
	ActionPublish   = "publish"
	ActionUnpublish = "unpublish"
	ActionPlay      = "play"
	ActionStop      = "stop"
	ActionExpire    = "expire"
)

// StreamEvent is emitted when a stream is published or played.
type StreamEvent struct {
	Action    string
	Path      string
	Session   string
	Remote    string
	Timestamp time.Time
}

func NewStreamEvent(action, path, session, remote string) *StreamEvent {
	return &StreamEvent{
		Action:    action,
		Path:      path,
		Session:   session,
		Remote:    remote,
		Timestamp: time.Now(),
	}
}

func (e *StreamEvent) Clone() Event {
	c := *e
	return &c
}
