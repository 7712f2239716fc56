package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const profileColumns = `id, email, full_name, role, organization, deal_id, oidc_sub, password_hash,
	invited_by, invited_at, created_at, updated_at`

// ProfileRepository handles database operations for portal profiles
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// ProfileFilters narrows List results. Empty fields are ignored.
type ProfileFilters struct {
	DealID string
	Role   string
	Search string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(s rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	err := s.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.Role,
		&p.Organization,
		&p.DealID,
		&p.OIDCSub,
		&p.PasswordHash,
		&p.InvitedBy,
		&p.InvitedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, where string, arg any) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE ` + where
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a profile by ID. Returns nil, nil when it does not exist.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByEmail retrieves a profile by email (case-insensitive).
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", email)
}

// GetByOIDCSub retrieves the profile linked to an identity provider subject.
func (r *ProfileRepository) GetByOIDCSub(ctx context.Context, sub string) (*models.Profile, error) {
	return r.getOne(ctx, "oidc_sub = $1", sub)
}

// Exists reports whether a profile with the given ID exists.
func (r *ProfileRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Create inserts a new profile, assigning an ID and timestamps when unset.
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO profiles (id, email, full_name, role, organization, deal_id, oidc_sub, password_hash,
			invited_by, invited_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.FullName, p.Role, p.Organization, p.DealID, p.OIDCSub, p.PasswordHash,
		p.InvitedBy, p.InvitedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Update saves the mutable profile fields. Returns false when the row is gone.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) (bool, error) {
	p.UpdatedAt = time.Now()
	query := `
		UPDATE profiles
		SET full_name = $2, role = $3, organization = $4, deal_id = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, p.ID, p.FullName, p.Role, p.Organization, p.DealID, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LinkOIDCSub attaches an identity provider subject to an existing profile.
func (r *ProfileRepository) LinkOIDCSub(ctx context.Context, id, sub string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET oidc_sub = $2, updated_at = $3 WHERE id = $1`,
		id, sub, time.Now(),
	)
	return err
}

// List returns a page of profiles matching filters plus the total match count.
func (r *ProfileRepository) List(ctx context.Context, filters ProfileFilters, limit, offset int) ([]*models.Profile, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	paramIndex := 1

	if filters.DealID != "" {
		where += fmt.Sprintf(` AND deal_id = $%d`, paramIndex)
		args = append(args, filters.DealID)
		paramIndex++
	}
	if filters.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, paramIndex)
		args = append(args, filters.Role)
		paramIndex++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND (email ILIKE $%d OR full_name ILIKE $%d)`, paramIndex, paramIndex)
		args = append(args, "%"+filters.Search+"%")
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + profileColumns + ` FROM profiles` + where +
		fmt.Sprintf(` ORDER BY email LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	profiles := make([]*models.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, p)
	}
	return profiles, total, rows.Err()
}

// GetMany returns the profiles among ids that exist, keyed by ID.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
