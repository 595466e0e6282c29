// Package memory provides an in-memory Store for tests and embedded use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caravanhq/caravan"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/party"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/store"
	"github.com/caravanhq/caravan/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps all engine state in maps guarded by one RWMutex. Dense
// product and shipment ids are allocated from counters starting at 1.
type Store struct {
	mu sync.RWMutex

	manufacturers map[id.Address]*party.Manufacturer
	warehouses    map[id.Address]*party.Warehouse
	storefronts   map[id.Address]*party.Storefront

	products     map[catalog.ProductID]*catalog.Product
	productBySKU map[string]catalog.ProductID
	nextProduct  catalog.ProductID

	shipments    map[shipment.ID]*shipment.Shipment
	nextShipment shipment.ID

	claimable map[catalog.ProductID]int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		manufacturers: make(map[id.Address]*party.Manufacturer),
		warehouses:    make(map[id.Address]*party.Warehouse),
		storefronts:   make(map[id.Address]*party.Storefront),
		products:      make(map[catalog.ProductID]*catalog.Product),
		productBySKU:  make(map[string]catalog.ProductID),
		nextProduct:   1,
		shipments:     make(map[shipment.ID]*shipment.Shipment),
		nextShipment:  1,
		claimable:     make(map[catalog.ProductID]int64),
	}
}

// ==================== Party registry ====================

func (s *Store) CreateManufacturer(_ context.Context, m *party.Manufacturer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manufacturers[m.Address]; exists {
		return caravan.ErrAlreadyRegistered
	}

	clone := *m
	s.manufacturers[m.Address] = &clone
	return nil
}

func (s *Store) GetManufacturer(_ context.Context, addr id.Address) (*party.Manufacturer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.manufacturers[addr]
	if !ok {
		return nil, caravan.ErrManufacturerNotFound
	}

	clone := *m
	return &clone, nil
}

func (s *Store) CreateWarehouse(_ context.Context, w *party.Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.warehouses[w.Address]; exists {
		return caravan.ErrAlreadyRegistered
	}

	clone := *w
	s.warehouses[w.Address] = &clone
	return nil
}

func (s *Store) GetWarehouse(_ context.Context, addr id.Address) (*party.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.warehouses[addr]
	if !ok {
		return nil, caravan.ErrWarehouseNotFound
	}

	clone := *w
	return &clone, nil
}

func (s *Store) CreateStorefront(_ context.Context, sf *party.Storefront) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.storefronts[sf.Address]; exists {
		return caravan.ErrAlreadyRegistered
	}

	clone := *sf
	s.storefronts[sf.Address] = &clone
	return nil
}

func (s *Store) GetStorefront(_ context.Context, addr id.Address) (*party.Storefront, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sf, ok := s.storefronts[addr]
	if !ok {
		return nil, caravan.ErrStorefrontNotFound
	}

	clone := *sf
	return &clone, nil
}

// ==================== Catalog ====================

func (s *Store) CreateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productBySKU[p.SKU]; exists {
		return caravan.ErrDuplicateSKU
	}

	p.ID = s.nextProduct
	s.nextProduct++

	clone := *p
	s.products[p.ID] = &clone
	s.productBySKU[p.SKU] = p.ID
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID catalog.ProductID) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, caravan.ErrProductNotFound
	}

	clone := *p
	return &clone, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	productID, ok := s.productBySKU[sku]
	if !ok {
		return nil, caravan.ErrProductNotFound
	}

	clone := *s.products[productID]
	return &clone, nil
}

func (s *Store) ListProducts(_ context.Context) ([]*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		clone := *p
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListProductIDsByManufacturer(_ context.Context, addr id.Address) ([]catalog.ProductID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []catalog.ProductID
	for productID, p := range s.products {
		if p.Manufacturer.Equal(addr) {
			ids = append(ids, productID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ==================== Shipments ====================

func (s *Store) CreateShipment(_ context.Context, sh *shipment.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh.ID = s.nextShipment
	s.nextShipment++

	clone := *sh
	s.shipments[sh.ID] = &clone
	return nil
}

func (s *Store) GetShipment(_ context.Context, shipmentID shipment.ID) (*shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shipments[shipmentID]
	if !ok {
		return nil, caravan.ErrShipmentNotFound
	}

	clone := *sh
	return &clone, nil
}

func (s *Store) AdvanceShipment(_ context.Context, shipmentID shipment.ID, from, to shipment.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[shipmentID]
	if !ok {
		return caravan.ErrShipmentNotFound
	}
	if sh.Status != from {
		return advanceConflict(sh.Status, from)
	}

	sh.Status = to
	sh.Touch()
	return nil
}

// advanceConflict maps a failed status compare-and-swap to the sentinel
// the caller expects for that precondition.
func advanceConflict(current, expected shipment.Status) error {
	switch expected {
	case shipment.StatusPending:
		return caravan.ErrShipmentNotPending
	case shipment.StatusConfirmed:
		if current == shipment.StatusClaimed {
			return caravan.ErrShipmentAlreadyClaimed
		}
		return caravan.ErrShipmentNotConfirmed
	default:
		return caravan.ErrShipmentNotFound
	}
}

func (s *Store) ListShipmentIDs(_ context.Context, q shipment.Query) ([]shipment.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []shipment.ID
	for shipmentID, sh := range s.shipments {
		if q.Matches(sh) {
			ids = append(ids, shipmentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ==================== Settlement ====================

func (s *Store) AddClaimable(_ context.Context, productID catalog.ProductID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claimable[productID] += qty
	return nil
}

func (s *Store) Claimable(_ context.Context, productID catalog.ProductID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.claimable[productID], nil
}

func (s *Store) ResetClaimable(_ context.Context, productID catalog.ProductID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.claimable[productID]
	s.claimable[productID] = 0
	return prior, nil
}

func (s *Store) AccrueStorageFee(_ context.Context, warehouse id.Address, fee types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.warehouses[warehouse]
	if !ok {
		return caravan.ErrWarehouseNotFound
	}

	w.ClaimableFees = w.ClaimableFees.Add(fee)
	w.Touch()
	return nil
}

func (s *Store) WithdrawStorageFees(_ context.Context, warehouse id.Address) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.warehouses[warehouse]
	if !ok {
		return types.Money{}, caravan.ErrWarehouseNotFound
	}

	prior := w.ClaimableFees
	w.ClaimableFees = types.Zero(prior.Currency)
	w.Touch()
	return prior, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
