package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/caravanhq/caravan"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/party"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

func newManufacturer() *party.Manufacturer {
	return &party.Manufacturer{
		Entity:  types.NewEntity(),
		Address: id.NewAddress(),
	}
}

func newWarehouse(name string) *party.Warehouse {
	return &party.Warehouse{
		Entity:        types.NewEntity(),
		Address:       id.NewAddress(),
		Name:          name,
		ClaimableFees: types.Zero("usd"),
	}
}

func TestPartyRegistry(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := newManufacturer()
	if err := s.CreateManufacturer(ctx, m); err != nil {
		t.Fatalf("CreateManufacturer: %v", err)
	}
	if err := s.CreateManufacturer(ctx, m); !errors.Is(err, caravan.ErrAlreadyRegistered) {
		t.Errorf("duplicate create: got %v, want ErrAlreadyRegistered", err)
	}

	got, err := s.GetManufacturer(ctx, m.Address)
	if err != nil {
		t.Fatalf("GetManufacturer: %v", err)
	}
	if !got.Address.Equal(m.Address) {
		t.Errorf("address mismatch: got %s, want %s", got.Address, m.Address)
	}

	if _, err := s.GetManufacturer(ctx, id.NewAddress()); !errors.Is(err, caravan.ErrManufacturerNotFound) {
		t.Errorf("missing manufacturer: got %v, want ErrManufacturerNotFound", err)
	}
	if _, err := s.GetWarehouse(ctx, m.Address); !errors.Is(err, caravan.ErrWarehouseNotFound) {
		t.Errorf("manufacturer address as warehouse: got %v, want ErrWarehouseNotFound", err)
	}
	if _, err := s.GetStorefront(ctx, m.Address); !errors.Is(err, caravan.ErrStorefrontNotFound) {
		t.Errorf("manufacturer address as storefront: got %v, want ErrStorefrontNotFound", err)
	}
}

func TestCreateProductAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	maker := id.NewAddress()

	for i, sku := range []string{"SKU-A", "SKU-B", "SKU-C"} {
		p := &catalog.Product{
			Entity:       types.NewEntity(),
			SKU:          sku,
			Name:         "widget",
			UnitPrice:    types.USD(100),
			Manufacturer: maker,
		}
		if err := s.CreateProduct(ctx, p); err != nil {
			t.Fatalf("CreateProduct %s: %v", sku, err)
		}
		if want := catalog.ProductID(i + 1); p.ID != want {
			t.Errorf("product %s: got id %d, want %d", sku, p.ID, want)
		}
	}

	dup := &catalog.Product{Entity: types.NewEntity(), SKU: "SKU-B", UnitPrice: types.USD(1), Manufacturer: maker}
	if err := s.CreateProduct(ctx, dup); !errors.Is(err, caravan.ErrDuplicateSKU) {
		t.Errorf("duplicate sku: got %v, want ErrDuplicateSKU", err)
	}

	bySKU, err := s.GetProductBySKU(ctx, "SKU-B")
	if err != nil {
		t.Fatalf("GetProductBySKU: %v", err)
	}
	if bySKU.ID != 2 {
		t.Errorf("GetProductBySKU: got id %d, want 2", bySKU.ID)
	}

	ids, err := s.ListProductIDsByManufacturer(ctx, maker)
	if err != nil {
		t.Fatalf("ListProductIDsByManufacturer: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("owned ids: got %v, want [1 2 3]", ids)
	}
	if ids, _ := s.ListProductIDsByManufacturer(ctx, id.NewAddress()); len(ids) != 0 {
		t.Errorf("stranger owned ids: got %v, want none", ids)
	}
}

func TestAdvanceShipment(t *testing.T) {
	ctx := context.Background()
	s := New()

	sh := &shipment.Shipment{
		Entity:    types.NewEntity(),
		ProductID: 1,
		Quantity:  5,
		From:      id.NewAddress(),
		To:        id.NewAddress(),
		Status:    shipment.StatusPending,
	}
	if err := s.CreateShipment(ctx, sh); err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	if sh.ID != 1 {
		t.Fatalf("shipment id: got %d, want 1", sh.ID)
	}

	if err := s.AdvanceShipment(ctx, sh.ID, shipment.StatusConfirmed, shipment.StatusClaimed); !errors.Is(err, caravan.ErrShipmentNotConfirmed) {
		t.Errorf("claim before confirm: got %v, want ErrShipmentNotConfirmed", err)
	}
	if err := s.AdvanceShipment(ctx, sh.ID, shipment.StatusPending, shipment.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := s.AdvanceShipment(ctx, sh.ID, shipment.StatusPending, shipment.StatusConfirmed); !errors.Is(err, caravan.ErrShipmentNotPending) {
		t.Errorf("double confirm: got %v, want ErrShipmentNotPending", err)
	}
	if err := s.AdvanceShipment(ctx, sh.ID, shipment.StatusConfirmed, shipment.StatusClaimed); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.AdvanceShipment(ctx, sh.ID, shipment.StatusConfirmed, shipment.StatusClaimed); !errors.Is(err, caravan.ErrShipmentAlreadyClaimed) {
		t.Errorf("double claim: got %v, want ErrShipmentAlreadyClaimed", err)
	}
	if err := s.AdvanceShipment(ctx, 99, shipment.StatusPending, shipment.StatusConfirmed); !errors.Is(err, caravan.ErrShipmentNotFound) {
		t.Errorf("missing shipment: got %v, want ErrShipmentNotFound", err)
	}

	got, err := s.GetShipment(ctx, sh.ID)
	if err != nil {
		t.Fatalf("GetShipment: %v", err)
	}
	if got.Status != shipment.StatusClaimed {
		t.Errorf("status: got %s, want %s", got.Status, shipment.StatusClaimed)
	}
}

func TestListShipmentIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	maker := id.NewAddress()
	warehouseA := id.NewAddress()
	warehouseB := id.NewAddress()

	mk := func(to id.Address, status shipment.Status) {
		sh := &shipment.Shipment{Entity: types.NewEntity(), ProductID: 1, Quantity: 1, From: maker, To: to, Status: status}
		if err := s.CreateShipment(ctx, sh); err != nil {
			t.Fatalf("CreateShipment: %v", err)
		}
	}
	mk(warehouseA, shipment.StatusPending)
	mk(warehouseA, shipment.StatusConfirmed)
	mk(warehouseB, shipment.StatusPending)
	mk(warehouseA, shipment.StatusClaimed)

	ids, err := s.ListShipmentIDs(ctx, shipment.Query{To: warehouseA, Status: shipment.StatusPending})
	if err != nil {
		t.Fatalf("ListShipmentIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("pending at A: got %v, want [1]", ids)
	}

	ids, _ = s.ListShipmentIDs(ctx, shipment.Query{From: maker})
	if len(ids) != 4 {
		t.Errorf("from maker: got %v, want 4 ids", ids)
	}

	ids, _ = s.ListShipmentIDs(ctx, shipment.Query{From: maker, Status: shipment.StatusClaimed})
	if len(ids) != 1 || ids[0] != 4 {
		t.Errorf("claimed from maker: got %v, want [4]", ids)
	}
}

func TestClaimableCounters(t *testing.T) {
	ctx := context.Background()
	s := New()

	if n, _ := s.Claimable(ctx, 7); n != 0 {
		t.Fatalf("fresh claimable: got %d, want 0", n)
	}
	if err := s.AddClaimable(ctx, 7, 3); err != nil {
		t.Fatalf("AddClaimable: %v", err)
	}
	if err := s.AddClaimable(ctx, 7, 2); err != nil {
		t.Fatalf("AddClaimable: %v", err)
	}
	if n, _ := s.Claimable(ctx, 7); n != 5 {
		t.Errorf("claimable: got %d, want 5", n)
	}

	prior, err := s.ResetClaimable(ctx, 7)
	if err != nil {
		t.Fatalf("ResetClaimable: %v", err)
	}
	if prior != 5 {
		t.Errorf("reset returned %d, want 5", prior)
	}
	if n, _ := s.Claimable(ctx, 7); n != 0 {
		t.Errorf("claimable after reset: got %d, want 0", n)
	}
}

func TestStorageFees(t *testing.T) {
	ctx := context.Background()
	s := New()

	w := newWarehouse("central")
	if err := s.CreateWarehouse(ctx, w); err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}

	if err := s.AccrueStorageFee(ctx, w.Address, types.USD(1)); err != nil {
		t.Fatalf("AccrueStorageFee: %v", err)
	}
	if err := s.AccrueStorageFee(ctx, w.Address, types.USD(2)); err != nil {
		t.Fatalf("AccrueStorageFee: %v", err)
	}

	got, err := s.GetWarehouse(ctx, w.Address)
	if err != nil {
		t.Fatalf("GetWarehouse: %v", err)
	}
	if !got.ClaimableFees.Equal(types.USD(3)) {
		t.Errorf("claimable fees: got %s, want %s", got.ClaimableFees, types.USD(3))
	}

	fees, err := s.WithdrawStorageFees(ctx, w.Address)
	if err != nil {
		t.Fatalf("WithdrawStorageFees: %v", err)
	}
	if !fees.Equal(types.USD(3)) {
		t.Errorf("withdrawn: got %s, want %s", fees, types.USD(3))
	}

	got, _ = s.GetWarehouse(ctx, w.Address)
	if !got.ClaimableFees.IsZero() {
		t.Errorf("fees after withdraw: got %s, want zero", got.ClaimableFees)
	}

	if err := s.AccrueStorageFee(ctx, id.NewAddress(), types.USD(1)); !errors.Is(err, caravan.ErrWarehouseNotFound) {
		t.Errorf("accrue to stranger: got %v, want ErrWarehouseNotFound", err)
	}
}

func TestCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := newManufacturer()
	if err := s.CreateManufacturer(ctx, m); err != nil {
		t.Fatalf("CreateManufacturer: %v", err)
	}

	got, _ := s.GetManufacturer(ctx, m.Address)
	got.Products = append(got.Products, 42)

	again, _ := s.GetManufacturer(ctx, m.Address)
	if len(again.Products) != 0 {
		t.Errorf("mutation of returned record leaked into store: %v", again.Products)
	}
}
