// Package shipment defines the shipment record and its lifecycle.
//
// A shipment tracks a batch of tokenized inventory moving from a
// manufacturer to a warehouse. Its status advances Pending → Confirmed →
// Claimed, never backward and never skipping a step. Shipments are never
// deleted; claimed shipments remain as an audit trail.
package shipment

import (
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

// ID is the dense identifier assigned to a shipment on creation.
// The store allocates ids sequentially starting at 1.
type ID uint64

// Status is the lifecycle state of a shipment.
type Status string

const (
	// StatusPending means the shipment is created but the destination
	// warehouse has not yet acknowledged receipt.
	StatusPending Status = "pending"
	// StatusConfirmed means the warehouse has acknowledged receipt.
	StatusConfirmed Status = "confirmed"
	// StatusClaimed means the origin manufacturer has claimed the
	// receipt tokens for this shipment. Terminal.
	StatusClaimed Status = "claimed"
)

// CanAdvanceTo reports whether next is the single legal forward
// transition from s.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed
	case StatusConfirmed:
		return next == StatusClaimed
	default:
		return false
	}
}

// Shipment records a batch of inventory tokens minted into engine
// custody on behalf of a manufacturer and destined for a warehouse.
type Shipment struct {
	types.Entity
	ID        ID                `json:"id"`
	ProductID catalog.ProductID `json:"product_id"`
	Quantity  int64             `json:"quantity"`
	From      id.Address        `json:"from"` // originating manufacturer
	To        id.Address        `json:"to"`   // destination warehouse
	Status    Status            `json:"status"`
}

// Query selects shipment ids by party and status. Nil addresses and the
// empty status match everything.
type Query struct {
	From   id.Address
	To     id.Address
	Status Status
}

// Matches reports whether the shipment satisfies the query.
func (q Query) Matches(s *Shipment) bool {
	if !q.From.IsNil() && !q.From.Equal(s.From) {
		return false
	}
	if !q.To.IsNil() && !q.To.Equal(s.To) {
		return false
	}
	if q.Status != "" && q.Status != s.Status {
		return false
	}
	return true
}
