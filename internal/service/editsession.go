package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BeginEdit loads persisted order orderID into the draft for editing.
//
// The draft moves IDLE -> PREPARING while the server releases the order's
// stock reservation, then READY once the items are hydrated against a fresh
// catalog. Mutations and submits are refused while PREPARING. If the order
// cannot be fetched or released the draft goes back to what it was and the
// error wraps ErrRestoreFailed.
func (s *DraftService) BeginEdit(ctx context.Context, owner, id uuid.UUID, orderID int64) (View, error) {
	prev, err := s.markPreparing(ctx, owner, id, orderID)
	if err != nil {
		return View{}, err
	}

	log := s.log.WithFields(logrus.Fields{"draft_id": id, "order_id": orderID})

	persisted, err := s.api.GetOrder(ctx, orderID)
	if err == nil {
		err = s.api.StartEdit(ctx, orderID)
	}
	if err != nil {
		s.metrics.Restoration(false)
		log.WithError(err).Warn("edit restoration failed")
		if rbErr := s.rollback(ctx, id, prev); rbErr != nil {
			log.WithError(rbErr).Error("roll back draft after failed restoration")
		}
		return View{}, fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	s.metrics.Restoration(true)

	// The server just released stock, so the cached snapshot is stale.
	if _, err := s.catalog.Load(ctx); err != nil {
		log.WithError(err).Warn("catalog reload after restoration failed, using cached products")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("load draft: %w", err)
	}
	if d.State != enum.SessionPreparing || d.OrderID != orderID {
		return View{}, fmt.Errorf("draft %s left PREPARING during restoration: %w", id, ErrRestoreFailed)
	}

	idx := s.catalog.Snapshot()
	d.State = enum.SessionReady
	d.Restored = true
	d.Details = persisted.Details()
	d.Items = order.Hydrate(persisted.Items, idx)
	d.Paid = decimal.Zero
	if d.Details.PartialPaid() {
		d.Paid = order.ClampPaid(order.ItemsTotal(d.Items, idx), persisted.PartialPaid)
	}

	saved, err := s.save(ctx, d)
	if err != nil {
		return View{}, err
	}
	log.WithField("items", len(d.Items)).Info("order ready for editing")

	view := buildView(saved, idx)
	s.broadcast(saved.OwnerID, view)
	return view, nil
}

// markPreparing claims the draft for a restoration and returns its state
// before the claim.
func (s *DraftService) markPreparing(ctx context.Context, owner, id uuid.UUID, orderID int64) (store.Draft, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.load(ctx, owner, id)
	if err != nil {
		return store.Draft{}, err
	}
	if d.State == enum.SessionPreparing {
		return store.Draft{}, ErrEditInProgress
	}
	prev := d.Clone()

	d.State = enum.SessionPreparing
	d.OrderID = orderID
	d.Restored = false
	if _, err := s.save(ctx, d); err != nil {
		return store.Draft{}, err
	}
	return prev, nil
}

// rollback restores the pre-edit session fields. Form contents were never
// touched, so only the session fields need reverting.
func (s *DraftService) rollback(ctx context.Context, id uuid.UUID, prev store.Draft) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	d.State = prev.State
	d.OrderID = prev.OrderID
	d.Restored = prev.Restored
	if d.State == enum.SessionPreparing {
		d.State = enum.SessionIdle
	}
	_, err = s.store.SaveDraft(ctx, d)
	return err
}
