package models

import "time"

// Profile is a portal user. Role holds one of the closed role names; it is
// parsed by the auth package and is the only authorization axis.
type Profile struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         string     `db:"role" json:"role"`
	Organization *string    `db:"organization" json:"organization,omitempty"`
	DealID       *string    `db:"deal_id" json:"deal_id,omitempty"`
	OIDCSub      *string    `db:"oidc_sub" json:"-"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	InvitedBy    *string    `db:"invited_by" json:"invited_by,omitempty"`
	InvitedAt    *time.Time `db:"invited_at" json:"invited_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName falls back to the email when no name is on file.
func (p *Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
