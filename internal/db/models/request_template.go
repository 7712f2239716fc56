package models

import "time"

// TemplateItem is read-only reference data used to seed a deal's requests.
type TemplateItem struct {
	ID                string   `db:"id" json:"id"`
	Title             string   `db:"title" json:"title"`
	Description       string   `db:"description" json:"description"`
	Category          Category `db:"category" json:"category"`
	Priority          Priority `db:"priority" json:"priority"`
	TypicalPeriod     *string  `db:"typical_period" json:"typical_period,omitempty"`
	AllowFileUpload   bool     `db:"allow_file_upload" json:"allow_file_upload"`
	AllowTextResponse bool     `db:"allow_text_response" json:"allow_text_response"`
	SortOrder         int      `db:"sort_order" json:"sort_order"`
}

// TemplateApplication marks that template seeding ran for a deal.
type TemplateApplication struct {
	ID           string    `db:"id" json:"id"`
	DealID       string    `db:"deal_id" json:"deal_id"`
	AppliedBy    *string   `db:"applied_by" json:"applied_by,omitempty"`
	AppliedAt    time.Time `db:"applied_at" json:"applied_at"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	CreatedCount int       `db:"created_count" json:"created_count"`
	SkippedCount int       `db:"skipped_count" json:"skipped_count"`
}
