package core

import "time"

// AuditEntry records one protocol decision.
type AuditEntry struct {
	// ID is a unique entry id.
	ID string `json:"id"`

	// Time is the timestamp of the event.
	Time time.Time `json:"time"`

	// Action describes what happened (e.g. "token.request", "token.claim",
	// "token.exchange", "consumer.add").
	Action string `json:"action"`

	// ConsumerKey identifies the client the decision was made for.
	ConsumerKey string `json:"consumer_key,omitempty"`

	// TokenKey identifies the token involved, if any.
	TokenKey string `json:"token_key,omitempty"`

	// User is the resource owner involved, if any.
	User string `json:"user,omitempty"`

	// Granted records the outcome; Error carries the denial reason.
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
