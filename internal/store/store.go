package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("draft not found")
	ErrVersionConflict = errors.New("draft was modified concurrently")
)

// Draft is one user's in-progress order form.
//
// Version starts at 0 for a draft that was never saved. Every Save bumps it
// and rejects writes based on a stale copy.
type Draft struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	State     string
	OrderID   int64
	Restored  bool
	Details   order.Details
	Items     order.Collection
	Paid      decimal.Decimal
	Version   int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDraft returns a blank create-mode draft owned by owner.
func NewDraft(owner uuid.UUID) Draft {
	return Draft{
		ID:      uuid.New(),
		OwnerID: owner,
		State:   enum.SessionIdle,
		Details: order.DefaultDetails(),
		Items:   order.NewCollection(order.Session{}),
		Paid:    decimal.Zero,
	}
}

// Session is the allocation view of the draft.
func (d Draft) Session() order.Session {
	return order.Session{OrderID: d.OrderID, Restored: d.Restored}
}

// Clone returns a copy whose Items can be mutated independently.
func (d Draft) Clone() Draft {
	d.Items = d.Items.Clone()
	return d
}
