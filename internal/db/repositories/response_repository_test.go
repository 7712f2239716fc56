package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/diligence-portal/portal/internal/db/models"
)

func newResponseRepo(t *testing.T) (*ResponseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewResponseRepository(db), mock
}

func TestResponseUpsert_KeepsOriginalID(t *testing.T) {
	repo, mock := newResponseRepo(t)
	created := time.Now().Add(-time.Hour)
	mock.ExpectQuery("INSERT INTO request_responses .* ON CONFLICT \\(request_id\\) DO UPDATE .* RETURNING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("resp-original", created, time.Now()))

	resp := &models.RequestResponse{RequestID: "req-1", ResponseText: "See attached", SubmittedBy: strPtr("user-1")}
	if err := repo.Upsert(context.Background(), resp); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if resp.ID != "resp-original" {
		t.Errorf("ID = %s, want the stored row's ID", resp.ID)
	}
	if !resp.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", resp.CreatedAt, created)
	}
}

func TestResponseGetByRequest_None(t *testing.T) {
	repo, mock := newResponseRepo(t)
	mock.ExpectQuery("FROM request_responses WHERE request_id").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "response_text", "submitted_by", "created_at", "updated_at"}))

	resp, err := repo.GetByRequest(context.Background(), "req-1")
	if err != nil || resp != nil {
		t.Fatalf("GetByRequest = %v, %v", resp, err)
	}
}
