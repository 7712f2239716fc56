package models

import "time"

// AuditEvent is an append-only record of a security or business event.
// ClientTimestamp, UserAgent and URL come from the caller and are not trusted.
type AuditEvent struct {
	ID              string         `json:"id"`
	EventType       string         `json:"event_type"`
	UserID          *string        `json:"user_id,omitempty"`
	ResourceType    *string        `json:"resource_type,omitempty"`
	ResourceID      *string        `json:"resource_id,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	UserAgent       *string        `json:"user_agent,omitempty"`
	URL             *string        `json:"url,omitempty"`
	ClientTimestamp *time.Time     `json:"client_timestamp,omitempty"`
	RequestID       *string        `json:"request_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
