package models

import "time"

// Broadcast is the wildcard recipient: a message addressed to it is
// delivered to every registered participant.
const Broadcast = "*"

// Message is an ephemeral note exchanged between workers during execution.
// Messages are not persisted; they exist only for delivery and timeout handling.
type Message struct {
	// From is the sending participant's id.
	From string `json:"from"`
	// To is the recipient participant id, or Broadcast for all.
	To string `json:"to"`
	// Type labels the message for the recipient (e.g. "context_share").
	Type string `json:"type"`
	// Payload is the message body.
	Payload string `json:"payload,omitempty"`
	// CorrelationID pairs a request message to its eventual response.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Timestamp is when the message was sent.
	Timestamp time.Time `json:"timestamp"`
}
