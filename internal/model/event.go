package model

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventCircleCreated     EventType = "circle.created"
	EventCircleUpdated     EventType = "circle.updated"
	EventJoinRequested     EventType = "circle.join_requested"
	EventMemberJoined      EventType = "circle.joined"
	EventJoinApproved      EventType = "circle.join_approved"
	EventJoinRejected      EventType = "circle.join_rejected"
	EventMemberRemoved     EventType = "circle.member_removed"
	EventMemberLeft        EventType = "circle.member_left"
	EventRoleChanged       EventType = "circle.role_changed"
	EventPostCreated       EventType = "post.created"
	EventCommentCreated    EventType = "comment.created"
	EventFriendRequested   EventType = "friend.requested"
	EventFriendAccepted    EventType = "friend.accepted"
	EventDirectMessage     EventType = "message.created"
	EventDirectMessageRead EventType = "message.read"
)

// Event is a domain change pushed to interested users. Recipients lists the
// user IDs that should receive a live notification; it may be empty.
type Event struct {
	Type       EventType       `json:"type"`
	ActorID    string          `json:"actor_id"`
	CircleID   string          `json:"circle_id,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent marshals payload into a new event. A payload that cannot be
// marshaled is dropped rather than failing the caller.
func NewEvent(typ EventType, actorID, circleID string, payload any, recipients ...string) *Event {
	e := &Event{
		Type:       typ,
		ActorID:    actorID,
		CircleID:   circleID,
		Recipients: recipients,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Key selects the partition key: circle events stay ordered per circle,
// the rest per actor.
func (e *Event) Key() string {
	if e.CircleID != "" {
		return e.CircleID
	}
	return e.ActorID
}
