package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/diligence-portal/portal/internal/db/models"
)

var requestCols = []string{
	"id", "deal_id", "title", "description", "category", "priority", "status", "assigned_to",
	"period_text", "allow_file_upload", "allow_text_response", "created_at", "updated_at",
}

func sampleRequestRow() *sqlmock.Rows {
	return sqlmock.NewRows(requestCols).
		AddRow("req-1", "deal-1", "Audited financials", "FY22-FY24", "Financial", "high", "pending", nil,
			"FY22-FY24", true, false, time.Now(), time.Now())
}

func newRequestRepo(t *testing.T) (*RequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRequestRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetByID / GetWithAssignee
// ---------------------------------------------------------------------------

func TestRequestGetByID(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT .* FROM diligence_requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(sampleRequestRow())

	req, err := repo.GetByID(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Category != models.CategoryFinancial || req.Status != models.StatusPending {
		t.Errorf("req = %+v", req)
	}
}

func TestRequestGetByID_NotFound(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT .* FROM diligence_requests WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(requestCols))

	req, err := repo.GetByID(context.Background(), "nope")
	if err != nil || req != nil {
		t.Fatalf("GetByID = %v, %v; want nil, nil", req, err)
	}
}

func TestRequestGetWithAssignee(t *testing.T) {
	cols := append(append([]string{}, requestCols...), "p_id", "p_email", "p_name", "p_role", "p_org", "p_deal")
	now := time.Now()

	t.Run("assigned", func(t *testing.T) {
		repo, mock := newRequestRepo(t)
		mock.ExpectQuery("LEFT JOIN profiles").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				"req-1", "deal-1", "T", "", "Legal", "medium", "submitted", "user-2",
				nil, true, true, now, now,
				"user-2", "sam@seller.com", "Sam", "seller_legal", nil, "deal-1"))

		got, err := repo.GetWithAssignee(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Assignee == nil || got.Assignee.Email != "sam@seller.com" {
			t.Errorf("assignee = %+v", got.Assignee)
		}
	})

	t.Run("unassigned", func(t *testing.T) {
		repo, mock := newRequestRepo(t)
		mock.ExpectQuery("LEFT JOIN profiles").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				"req-1", "deal-1", "T", "", "Legal", "medium", "pending", nil,
				nil, true, false, now, now,
				nil, nil, nil, nil, nil, nil))

		got, err := repo.GetWithAssignee(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Assignee != nil {
			t.Errorf("expected no assignee, got %+v", got.Assignee)
		}
	})
}

// ---------------------------------------------------------------------------
// List / ListTitlesByDeal
// ---------------------------------------------------------------------------

func TestRequestList_AllFilters(t *testing.T) {
	repo, mock := newRequestRepo(t)
	f := RequestFilters{
		DealID: "deal-1", Category: "Legal", Status: "pending", Priority: "high",
		AssignedTo: "user-2", Search: "lease",
	}
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM diligence_requests WHERE 1=1 AND deal_id = \$1 AND category = \$2 AND status = \$3 AND priority = \$4 AND assigned_to = \$5 AND \(title ILIKE \$6 OR description ILIKE \$6\)`).
		WithArgs("deal-1", "Legal", "pending", "high", "user-2", "%lease%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`LIMIT \$7 OFFSET \$8`).
		WithArgs("deal-1", "Legal", "pending", "high", "user-2", "%lease%", 50, 10).
		WillReturnRows(sampleRequestRow())

	reqs, total, err := repo.List(context.Background(), f, 50, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(reqs) != 1 {
		t.Errorf("total=%d len=%d", total, len(reqs))
	}
}

func TestRequestList_CountError(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	if _, _, err := repo.List(context.Background(), RequestFilters{}, 10, 0); !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want errDB", err)
	}
}

func TestListTitlesByDeal(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT title FROM diligence_requests WHERE deal_id").
		WithArgs("deal-1").
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("A").AddRow("B").AddRow("A"))

	titles, err := repo.ListTitlesByDeal(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(titles) != 3 {
		t.Errorf("titles = %v", titles)
	}
}

// ---------------------------------------------------------------------------
// BulkCreate
// ---------------------------------------------------------------------------

func TestBulkCreate_SingleStatement(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectExec(`INSERT INTO diligence_requests .* VALUES \(\$1, .*\$13\), \(\$14, .*\$26\)$`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	reqs := []*models.DiligenceRequest{
		{DealID: "deal-1", Title: "A", Category: models.CategoryHR, Priority: models.PriorityLow, Status: models.StatusPending},
		{DealID: "deal-1", Title: "B", Category: models.CategoryIT, Priority: models.PriorityLow, Status: models.StatusPending},
	}
	if err := repo.BulkCreate(context.Background(), reqs); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	for _, r := range reqs {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Errorf("row not stamped: %+v", r)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestBulkCreate_EmptyIsNoop(t *testing.T) {
	repo, mock := newRequestRepo(t)
	if err := repo.BulkCreate(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Setters
// ---------------------------------------------------------------------------

// recentTime matches a time.Time argument taken after since and no later
// than now.
type recentTime struct{ since time.Time }

func (a recentTime) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	return ok && !ts.Before(a.since) && !ts.After(time.Now())
}

func TestSetStatus(t *testing.T) {
	repo, mock := newRequestRepo(t)
	start := time.Now()
	mock.ExpectExec("UPDATE diligence_requests SET status").
		WithArgs("req-1", models.StatusApproved, recentTime{since: start}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE diligence_requests SET status").
		WithArgs("missing", models.StatusApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetStatus(context.Background(), "req-1", models.StatusApproved)
	if err != nil || !ok {
		t.Fatalf("SetStatus(req-1) = %v, %v", ok, err)
	}
	ok, err = repo.SetStatus(context.Background(), "missing", models.StatusApproved)
	if err != nil || ok {
		t.Fatalf("SetStatus(missing) = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetAssignee_Clear(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectExec("UPDATE diligence_requests SET assigned_to").
		WithArgs("req-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetAssignee(context.Background(), "req-1", nil)
	if err != nil || !ok {
		t.Fatalf("SetAssignee = %v, %v", ok, err)
	}
}

func TestMarkSubmittedIfPending(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectExec("UPDATE diligence_requests SET status .* AND status = \\$4").
		WithArgs("req-1", models.StatusSubmitted, recentTime{since: time.Now().Add(-time.Second)}, models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkSubmittedIfPending(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false when request was not pending")
	}
}

func TestRequestUpdateAndDelete(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectExec("UPDATE diligence_requests SET title").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM diligence_requests").
		WithArgs("req-1").
		WillReturnError(errDB)

	ok, err := repo.Update(context.Background(), &models.DiligenceRequest{ID: "req-1", Title: "New"})
	if err != nil || !ok {
		t.Fatalf("Update = %v, %v", ok, err)
	}
	if _, err := repo.Delete(context.Background(), "req-1"); !errors.Is(err, errDB) {
		t.Fatalf("Delete err = %v, want errDB", err)
	}
}
