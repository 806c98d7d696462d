package models

const (
	EventMessageSent         = "message.sent"
	EventAssignmentCompleted = "assignment.completed"
	EventAssignmentScored    = "assignment.scored"
	EventSessionStarted      = "session.started"
	EventSessionStopped      = "session.stopped"
	EventCertificateIssued   = "certificate.issued"
)

// DomainEvent is published to the broker with Type as routing key.
type DomainEvent struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
	ActorRole    string `json:"actor_role,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Title        string `json:"title,omitempty"`
	Text         string `json:"text,omitempty"`
	URL          string `json:"url,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
	// OpResync means notifications may have been missed and every watcher should re-read.
	OpResync ChangeOp = "resync"
	// OpSnapshot is the initial value delivered right after subscribing.
	OpSnapshot ChangeOp = "snapshot"
)

// ChangeEvent is one row of the primary store's change feed.
type ChangeEvent struct {
	Collection string   `json:"collection"`
	ID         string   `json:"id"`
	Op         ChangeOp `json:"op"`
}
