package models

import "time"

// Category groups requests on dashboards and in statistics.
type Category string

const (
	CategoryFinancial     Category = "Financial"
	CategoryLegal         Category = "Legal"
	CategoryOperations    Category = "Operations"
	CategoryHR            Category = "HR"
	CategoryIT            Category = "IT"
	CategoryEnvironmental Category = "Environmental"
	CategoryCommercial    Category = "Commercial"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryFinancial, CategoryLegal, CategoryOperations, CategoryHR,
		CategoryIT, CategoryEnvironmental, CategoryCommercial, CategoryOther,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Priority of a request.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// RequestStatus is unordered: any status may be set from any other.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusSubmitted RequestStatus = "submitted"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
)

// Statuses lists every request status.
func Statuses() []RequestStatus {
	return []RequestStatus{StatusPending, StatusSubmitted, StatusApproved, StatusRejected}
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// DiligenceRequest is one unit of requested information within a deal.
type DiligenceRequest struct {
	ID                string        `db:"id" json:"id"`
	DealID            string        `db:"deal_id" json:"deal_id"`
	Title             string        `db:"title" json:"title"`
	Description       string        `db:"description" json:"description"`
	Category          Category      `db:"category" json:"category"`
	Priority          Priority      `db:"priority" json:"priority"`
	Status            RequestStatus `db:"status" json:"status"`
	AssignedTo        *string       `db:"assigned_to" json:"assigned_to,omitempty"`
	PeriodText        *string       `db:"period_text" json:"period_text,omitempty"`
	AllowFileUpload   bool          `db:"allow_file_upload" json:"allow_file_upload"`
	AllowTextResponse bool          `db:"allow_text_response" json:"allow_text_response"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestWithAssignee is the editing view of a request: the row plus the
// assignee profile (if any) for pre-populating an assignment form.
type RequestWithAssignee struct {
	DiligenceRequest
	Assignee *Profile `json:"assignee,omitempty"`
}
