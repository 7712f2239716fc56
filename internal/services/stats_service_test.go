package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
)

func countRows() []repositories.RequestCountRow {
	return []repositories.RequestCountRow{
		{DealID: "d1", Category: "Financial", Status: "approved", Total: 3, WithDocuments: 3, WithResponse: 1, Answered: 3},
		{DealID: "d1", Category: "Financial", Status: "pending", Total: 1},
		{DealID: "d1", Category: "Legal", Status: "submitted", Total: 2, WithDocuments: 1, WithResponse: 1, Answered: 2},
		{DealID: "d1", Category: "Legal", Status: "rejected", Total: 1, WithDocuments: 1, Answered: 1},
		{DealID: "d2", Category: "IT", Status: "approved", Total: 1, Answered: 1, WithResponse: 1},
	}
}

func TestDealStats(t *testing.T) {
	svc := NewStatsService(&fakeStats{rows: countRows()}, newFakeDeals("d1", "d2"))

	ds, err := svc.DealStats(context.Background(), session(auth.RoleSeller, "d1"), "d1")
	require.NoError(t, err)

	require.Len(t, ds.Categories, len(models.Categories()))
	fin := ds.Categories[0]
	assert.Equal(t, "Financial", fin.Category)
	assert.Equal(t, 4, fin.Total)
	assert.Equal(t, 3, fin.Approved)
	assert.Equal(t, 3, fin.Completed)
	assert.Equal(t, 1, fin.Pending)
	assert.Equal(t, 75.0, fin.CompletionPercent)

	legal := ds.Categories[1]
	assert.Equal(t, 2, legal.Submitted)
	assert.Equal(t, 1, legal.Rejected)
	assert.Equal(t, 0, legal.Completed)
	assert.Equal(t, 3, legal.Answered)

	hr := ds.Categories[3]
	assert.Equal(t, "HR", hr.Category)
	assert.Zero(t, hr.Total)
	assert.Zero(t, hr.CompletionPercent)

	assert.Equal(t, 7, ds.Totals.Total)
	assert.Equal(t, 3, ds.Totals.Completed)
	assert.Equal(t, 6, ds.Totals.Answered)
	assert.Equal(t, 5, ds.Totals.WithDocuments)
	assert.Equal(t, 2, ds.Totals.WithResponse)
	assert.Equal(t, 42.9, ds.Totals.CompletionPercent)
}

func TestDealStats_Scope(t *testing.T) {
	svc := NewStatsService(&fakeStats{rows: countRows()}, newFakeDeals("d1", "d2"))
	_, err := svc.DealStats(context.Background(), session(auth.RoleSeller, "d1"), "d2")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDealStats_UnknownDeal(t *testing.T) {
	svc := NewStatsService(&fakeStats{rows: countRows()}, newFakeDeals("d1"))
	_, err := svc.DealStats(context.Background(), session(auth.RoleAdmin, ""), "d9")
	assert.ErrorIs(t, err, ErrNotFound)

	// Scope is checked before existence, so a seller learns nothing about
	// other deal ids.
	_, err = svc.DealStats(context.Background(), session(auth.RoleSeller, "d1"), "d9")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDealStats_StoreError(t *testing.T) {
	svc := NewStatsService(&fakeStats{err: errBoom}, newFakeDeals("d1"))
	_, err := svc.DealStats(context.Background(), session(auth.RoleAdmin, ""), "d1")
	assert.ErrorIs(t, err, errBoom)
}

func TestPortfolioStats(t *testing.T) {
	svc := NewStatsService(&fakeStats{rows: countRows()}, newFakeDeals("d1", "d2"))

	all, err := svc.PortfolioStats(context.Background(), session(auth.RoleBBTExec, ""))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d1", all[0].DealID)
	assert.Equal(t, "d2", all[1].DealID)
	assert.Equal(t, 100.0, all[1].Totals.CompletionPercent)

	_, err = svc.PortfolioStats(context.Background(), session(auth.RoleSeller, "d1"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(0, 0))
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, 100.0, percent(5, 5))
}
