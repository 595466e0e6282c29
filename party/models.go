// Package party defines the role records for the three registered
// marketplace roles: manufacturers, warehouses and storefronts.
//
// Registration is keyed by account address and is idempotent: re-registering
// an address is a no-op and never resets existing state. Records are never
// deleted.
package party

import (
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Kind names a registered role.
type Kind string

const (
	KindManufacturer Kind = "manufacturer"
	KindWarehouse    Kind = "warehouse"
	KindStorefront   Kind = "storefront"
)

// Manufacturer is a registered producer. The Products, PendingShipments
// and SettledShipments views are derived from the catalog and shipment
// tables when the record is read; only the identity and timestamps are
// stored directly.
type Manufacturer struct {
	types.Entity
	Address id.Address `json:"address"`

	Products         []catalog.ProductID `json:"products"`          // owned products, insertion order
	PendingShipments []shipment.ID       `json:"pending_shipments"` // initiated, not yet confirmed
	SettledShipments []shipment.ID       `json:"settled_shipments"` // receipt tokens claimed
}

// Warehouse is a registered storage location. ClaimableFees accrues
// monotonically as customers redeem tokens against this warehouse and is
// zeroed when the warehouse withdraws.
type Warehouse struct {
	types.Entity
	Address         id.Address  `json:"address"`
	Name            string      `json:"name"`
	PhysicalAddress string      `json:"physical_address"`
	ClaimableFees   types.Money `json:"claimable_fees"`

	PendingShipments []shipment.ID `json:"pending_shipments"` // incoming, not yet confirmed
}

// Storefront is a registered reseller. Markup is added to the
// manufacturer's base unit price on every store-proxied sale.
type Storefront struct {
	types.Entity
	Address id.Address  `json:"address"`
	Name    string      `json:"name"`
	Markup  types.Money `json:"markup"`
}
