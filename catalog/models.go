// Package catalog defines the product registry records.
package catalog

import (
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

// ProductID is the dense identifier assigned to a product when it is
// cataloged. The store allocates ids sequentially starting at 1; the id
// and the SKU are dual unique indices into the same record.
type ProductID uint64

// Product is an entry in the master catalog. Records are immutable after
// creation; inventory-derived counters live in the store, not here.
type Product struct {
	types.Entity
	ID           ProductID   `json:"id"`
	SKU          string      `json:"sku"`
	Name         string      `json:"name"`
	UnitPrice    types.Money `json:"unit_price"` // manufacturer's base price per unit
	Manufacturer id.Address  `json:"manufacturer"`
}
