package models

import "time"

// RequestResponse is the optional text answer to a request.
type RequestResponse struct {
	ID           string    `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	ResponseText string    `db:"response_text" json:"response_text"`
	SubmittedBy  *string   `db:"submitted_by" json:"submitted_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
