package services

import (
	"context"
	"fmt"

	"github.com/diligence-portal/portal/internal/auth"
)

// requireCap fails with ErrForbidden unless actor holds c.
func requireCap(actor *auth.Session, c auth.Capability) error {
	if !actor.Can(c) {
		return ErrForbidden
	}
	return nil
}

// requireDeal fails with ErrForbidden unless actor may see dealID.
func requireDeal(actor *auth.Session, dealID string) error {
	if !actor.CanAccessDeal(dealID) {
		return ErrForbidden
	}
	return nil
}

// requireDealExists fails with ErrNotFound when dealID has no row.
func requireDealExists(ctx context.Context, deals DealStore, dealID string) error {
	d, err := deals.GetByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("failed to load deal: %w", err)
	}
	if d == nil {
		return ErrNotFound
	}
	return nil
}

func actorID(actor *auth.Session) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}

func actorRef(actor *auth.Session) *string {
	return optional(actorID(actor))
}
