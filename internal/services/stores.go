package services

import (
	"context"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
)

// The interfaces below are the slices of the repositories each service
// needs. The concrete repositories satisfy them.

// DealStore persists deals.
type DealStore interface {
	Create(ctx context.Context, d *models.Deal) error
	GetByID(ctx context.Context, id string) (*models.Deal, error)
	Update(ctx context.Context, d *models.Deal) (bool, error)
	List(ctx context.Context, onlyID *string) ([]*models.Deal, error)
}

// RequestStore persists diligence requests.
type RequestStore interface {
	GetByID(ctx context.Context, id string) (*models.DiligenceRequest, error)
	GetWithAssignee(ctx context.Context, id string) (*models.RequestWithAssignee, error)
	List(ctx context.Context, filters repositories.RequestFilters, limit, offset int) ([]*models.DiligenceRequest, int, error)
	ListTitlesByDeal(ctx context.Context, dealID string) ([]string, error)
	Create(ctx context.Context, req *models.DiligenceRequest) error
	BulkCreate(ctx context.Context, reqs []*models.DiligenceRequest) error
	Update(ctx context.Context, req *models.DiligenceRequest) (bool, error)
	SetAssignee(ctx context.Context, id string, assignee *string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.RequestStatus) (bool, error)
	MarkSubmittedIfPending(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ProfileStore persists profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, p *models.Profile) (bool, error)
	List(ctx context.Context, filters repositories.ProfileFilters, limit, offset int) ([]*models.Profile, int, error)
	GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error)
}

// DocumentStore persists document rows.
type DocumentStore interface {
	Create(ctx context.Context, d *models.RequestDocument) error
	GetByID(ctx context.Context, id string) (*models.RequestDocument, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.RequestDocument, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CleanupQueue records storage objects that need reconciliation.
type CleanupQueue interface {
	Enqueue(ctx context.Context, storagePath, reason, lastError string) error
}

// ResponseStore persists text responses.
type ResponseStore interface {
	Upsert(ctx context.Context, resp *models.RequestResponse) error
	GetByRequest(ctx context.Context, requestID string) (*models.RequestResponse, error)
}

// TemplateStore reads the template catalog and records applications.
type TemplateStore interface {
	ListItems(ctx context.Context) ([]*models.TemplateItem, error)
	RecordApplication(ctx context.Context, app *models.TemplateApplication) error
	ListApplications(ctx context.Context, dealID string) ([]*models.TemplateApplication, error)
}

// StatsStore runs the aggregate count queries.
type StatsStore interface {
	RequestCounts(ctx context.Context, dealID string) ([]repositories.RequestCountRow, error)
	AllRequestCounts(ctx context.Context) ([]repositories.RequestCountRow, error)
}
