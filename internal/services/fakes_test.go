package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/storage"
	"github.com/google/uuid"
)

var errBoom = errors.New("boom")

func session(role auth.Role, dealID string) *auth.Session {
	s := &auth.Session{
		ID:      "sess-1",
		UserID:  "user-" + string(role),
		Role:    auth.Known(role),
		Profile: &models.Profile{ID: "user-" + string(role), Role: string(role)},
	}
	if dealID != "" {
		s.Profile.DealID = &dealID
	}
	return s
}

// ---------------------------------------------------------------------------

type fakeRequests struct {
	mu        sync.Mutex
	rows      map[string]*models.DiligenceRequest
	failIDs   map[string]bool
	bulkErr   error
	bulkCalls int
	created   []*models.DiligenceRequest
}

func newFakeRequests(reqs ...*models.DiligenceRequest) *fakeRequests {
	f := &fakeRequests{rows: map[string]*models.DiligenceRequest{}, failIDs: map[string]bool{}}
	for _, r := range reqs {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeRequests) GetByID(_ context.Context, id string) (*models.DiligenceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequests) GetWithAssignee(ctx context.Context, id string) (*models.RequestWithAssignee, error) {
	r, err := f.GetByID(ctx, id)
	if r == nil || err != nil {
		return nil, err
	}
	out := &models.RequestWithAssignee{DiligenceRequest: *r}
	if r.AssignedTo != nil {
		out.Assignee = &models.Profile{ID: *r.AssignedTo}
	}
	return out, nil
}

func (f *fakeRequests) List(_ context.Context, filters repositories.RequestFilters, _, _ int) ([]*models.DiligenceRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.DiligenceRequest, 0)
	for _, r := range f.rows {
		if filters.DealID != "" && r.DealID != filters.DealID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeRequests) ListTitlesByDeal(_ context.Context, dealID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, 0)
	for _, r := range f.rows {
		if r.DealID == dealID {
			titles = append(titles, r.Title)
		}
	}
	return titles, nil
}

func (f *fakeRequests) Create(ctx context.Context, req *models.DiligenceRequest) error {
	return f.BulkCreate(ctx, []*models.DiligenceRequest{req})
}

func (f *fakeRequests) BulkCreate(_ context.Context, reqs []*models.DiligenceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	if f.bulkErr != nil {
		return f.bulkErr
	}
	for _, r := range reqs {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		f.rows[r.ID] = r
		f.created = append(f.created, r)
	}
	return nil
}

func (f *fakeRequests) mutate(id string, fn func(r *models.DiligenceRequest)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return false, errBoom
	}
	r, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	fn(r)
	r.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRequests) Update(_ context.Context, req *models.DiligenceRequest) (bool, error) {
	return f.mutate(req.ID, func(r *models.DiligenceRequest) { *r = *req })
}

func (f *fakeRequests) SetAssignee(_ context.Context, id string, assignee *string) (bool, error) {
	return f.mutate(id, func(r *models.DiligenceRequest) { r.AssignedTo = assignee })
}

func (f *fakeRequests) SetStatus(_ context.Context, id string, status models.RequestStatus) (bool, error) {
	return f.mutate(id, func(r *models.DiligenceRequest) { r.Status = status })
}

func (f *fakeRequests) MarkSubmittedIfPending(_ context.Context, id string) (bool, error) {
	moved := false
	_, err := f.mutate(id, func(r *models.DiligenceRequest) {
		if r.Status == models.StatusPending {
			r.Status = models.StatusSubmitted
			moved = true
		}
	})
	return moved, err
}

func (f *fakeRequests) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeRequests) status(id string) models.RequestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

func (f *fakeRequests) updatedAt(id string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].UpdatedAt
}

// ---------------------------------------------------------------------------

type fakeProfiles struct {
	rows map[string]*models.Profile
	err  error
}

func newFakeProfiles(ps ...*models.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]*models.Profile{}}
	for _, p := range ps {
		f.rows[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[id], nil
}

func (f *fakeProfiles) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.rows {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) GetByOIDCSub(_ context.Context, sub string) (*models.Profile, error) {
	for _, p := range f.rows {
		if p.OIDCSub != nil && *p.OIDCSub == sub {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) LinkOIDCSub(_ context.Context, id, sub string) error {
	f.rows[id].OIDCSub = &sub
	return nil
}

func (f *fakeProfiles) Exists(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeProfiles) Create(_ context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	f.rows[p.ID] = p
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, p *models.Profile) (bool, error) {
	if _, ok := f.rows[p.ID]; !ok {
		return false, nil
	}
	f.rows[p.ID] = p
	return true, nil
}

func (f *fakeProfiles) List(_ context.Context, filters repositories.ProfileFilters, _, _ int) ([]*models.Profile, int, error) {
	out := make([]*models.Profile, 0)
	for _, p := range f.rows {
		if filters.DealID != "" && (p.DealID == nil || *p.DealID != filters.DealID) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeProfiles) GetMany(_ context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile)
	for _, id := range ids {
		if p, ok := f.rows[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

type fakeDocuments struct {
	rows      map[string]*models.RequestDocument
	createErr error
	deleteErr error
}

func newFakeDocuments(docs ...*models.RequestDocument) *fakeDocuments {
	f := &fakeDocuments{rows: map[string]*models.RequestDocument{}}
	for _, d := range docs {
		f.rows[d.ID] = d
	}
	return f
}

func (f *fakeDocuments) Create(_ context.Context, d *models.RequestDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	d.UploadedAt = time.Now()
	f.rows[d.ID] = d
	return nil
}

func (f *fakeDocuments) GetByID(_ context.Context, id string) (*models.RequestDocument, error) {
	return f.rows[id], nil
}

func (f *fakeDocuments) ListByRequest(_ context.Context, requestID string) ([]*models.RequestDocument, error) {
	out := make([]*models.RequestDocument, 0)
	for _, d := range f.rows {
		if d.RequestID == requestID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

// ---------------------------------------------------------------------------

type cleanupEntry struct{ path, reason string }

type fakeCleanup struct {
	entries []cleanupEntry
}

func (f *fakeCleanup) Enqueue(_ context.Context, storagePath, reason, _ string) error {
	f.entries = append(f.entries, cleanupEntry{storagePath, reason})
	return nil
}

// ---------------------------------------------------------------------------

type fakeResponses struct {
	rows map[string]*models.RequestResponse
	err  error
}

func (f *fakeResponses) Upsert(_ context.Context, resp *models.RequestResponse) error {
	if f.err != nil {
		return f.err
	}
	if f.rows == nil {
		f.rows = map[string]*models.RequestResponse{}
	}
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	f.rows[resp.RequestID] = resp
	return nil
}

func (f *fakeResponses) GetByRequest(_ context.Context, requestID string) (*models.RequestResponse, error) {
	return f.rows[requestID], nil
}

// ---------------------------------------------------------------------------

type fakeDeals struct {
	rows map[string]*models.Deal
}

func newFakeDeals(ids ...string) *fakeDeals {
	f := &fakeDeals{rows: map[string]*models.Deal{}}
	for _, id := range ids {
		f.rows[id] = &models.Deal{ID: id, Name: "Deal " + id}
	}
	return f
}

func (f *fakeDeals) Create(_ context.Context, d *models.Deal) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	f.rows[d.ID] = d
	return nil
}

func (f *fakeDeals) GetByID(_ context.Context, id string) (*models.Deal, error) {
	return f.rows[id], nil
}

func (f *fakeDeals) Update(_ context.Context, d *models.Deal) (bool, error) {
	if _, ok := f.rows[d.ID]; !ok {
		return false, nil
	}
	f.rows[d.ID] = d
	return true, nil
}

func (f *fakeDeals) List(_ context.Context, onlyID *string) ([]*models.Deal, error) {
	out := make([]*models.Deal, 0)
	for id, d := range f.rows {
		if onlyID != nil && *onlyID != id {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ---------------------------------------------------------------------------

type fakeTemplates struct {
	items   []*models.TemplateItem
	apps    []*models.TemplateApplication
	itemErr error
	appErr  error
}

func (f *fakeTemplates) ListItems(context.Context) ([]*models.TemplateItem, error) {
	return f.items, f.itemErr
}

func (f *fakeTemplates) RecordApplication(_ context.Context, app *models.TemplateApplication) error {
	if f.appErr != nil {
		return f.appErr
	}
	f.apps = append(f.apps, app)
	return nil
}

func (f *fakeTemplates) ListApplications(context.Context, string) ([]*models.TemplateApplication, error) {
	return f.apps, nil
}

// ---------------------------------------------------------------------------

type fakeStats struct {
	rows []repositories.RequestCountRow
	err  error
}

func (f *fakeStats) RequestCounts(_ context.Context, dealID string) ([]repositories.RequestCountRow, error) {
	out := make([]repositories.RequestCountRow, 0)
	for _, r := range f.rows {
		if r.DealID == dealID {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeStats) AllRequestCounts(context.Context) ([]repositories.RequestCountRow, error) {
	return f.rows, f.err
}

// ---------------------------------------------------------------------------

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
	signed    bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(_ context.Context, path string, r io.Reader, _ int64, _ string) (*storage.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[path] = data
	f.mu.Unlock()
	return &storage.UploadResult{Path: path, Size: int64(len(data)), Checksum: "sum"}, nil
}

func (f *fakeStorage) Download(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	delete(f.objects, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) GetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	if !f.signed {
		return "", storage.ErrSignedURLUnsupported
	}
	return "https://signed.example/" + path, nil
}

func (f *fakeStorage) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeStorage) has(path string) bool {
	ok, _ := f.Exists(context.Background(), path)
	return ok
}
