// Package models defines the row types of the portal schema.
package models

import "time"

// Deal is the root scoping entity. Every request, document and deal-scoped
// profile belongs to exactly one deal.
type Deal struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	CompanyName *string   `db:"company_name" json:"company_name,omitempty"`
	ProjectName *string   `db:"project_name" json:"project_name,omitempty"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
