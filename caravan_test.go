package caravan_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/caravanhq/caravan"
	assetmem "github.com/caravanhq/caravan/asset/memory"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/store/memory"
	"github.com/caravanhq/caravan/types"
)

type fixture struct {
	engine    *caravan.Engine
	inventory *assetmem.TokenLedger
	receipts  *assetmem.TokenLedger
	payments  *assetmem.PaymentLedger

	maker     id.Address
	warehouse id.Address
	customer  id.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		inventory: assetmem.NewTokenLedger(),
		receipts:  assetmem.NewTokenLedger(),
		payments:  assetmem.NewPaymentLedger("usd"),
		maker:     id.NewAddress(),
		warehouse: id.NewAddress(),
		customer:  id.NewAddress(),
	}
	f.engine = caravan.New(memory.New(), f.inventory, f.receipts, f.payments,
		caravan.WithLogger(slog.New(slog.DiscardHandler)))

	ctx := context.Background()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.engine.Stop() })

	if err := f.engine.RegisterManufacturer(ctx, f.maker); err != nil {
		t.Fatalf("RegisterManufacturer: %v", err)
	}
	if err := f.engine.RegisterWarehouse(ctx, f.warehouse, "Central", "1 Dock Rd"); err != nil {
		t.Fatalf("RegisterWarehouse: %v", err)
	}
	return f
}

// listMilk catalogs MILK at 2 and moves 100 units through a confirmed,
// claimed shipment into engine custody.
func (f *fixture) listMilk(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(2), "Whole milk", "MILK"); err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}
	sh, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 100, f.warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}
	if err := f.engine.ConfirmProductReceiptByWarehouse(ctx, f.warehouse, sh.ID); err != nil {
		t.Fatalf("ConfirmProductReceiptByWarehouse: %v", err)
	}
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.maker, sh.ID); err != nil {
		t.Fatalf("ClaimProductReceiptTokens: %v", err)
	}
}

func (f *fixture) fund(t *testing.T, owner id.Address, amount types.Money) {
	t.Helper()
	if err := f.payments.Mint(context.Background(), owner, amount); err != nil {
		t.Fatalf("mint payment: %v", err)
	}
	if err := f.payments.Approve(context.Background(), owner, f.engine.Address(), amount); err != nil {
		t.Fatalf("approve engine: %v", err)
	}
}

func (f *fixture) paymentBalance(t *testing.T, owner id.Address) types.Money {
	t.Helper()
	bal, err := f.payments.BalanceOf(context.Background(), owner)
	if err != nil {
		t.Fatalf("payment balance: %v", err)
	}
	return bal
}

func (f *fixture) tokenBalance(t *testing.T, l *assetmem.TokenLedger, owner id.Address) int64 {
	t.Helper()
	bal, err := l.BalanceOf(context.Background(), owner, 1)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return bal
}

func TestCatalogIntegrity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.AddProductToCatalog(ctx, id.NewAddress(), types.USD(2), "Milk", "MILK"); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("unregistered caller: got %v, want ErrUnauthorized", err)
	}

	p, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(2), "Whole milk", "MILK")
	if err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("product id: got %d, want 1", p.ID)
	}

	if _, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(3), "Other milk", "MILK"); !errors.Is(err, caravan.ErrDuplicateSKU) {
		t.Errorf("duplicate sku: got %v, want ErrDuplicateSKU", err)
	}

	bySKU, err := f.engine.GetProductBySKU(ctx, "MILK")
	if err != nil {
		t.Fatalf("GetProductBySKU: %v", err)
	}
	byID, err := f.engine.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if bySKU.ID != byID.ID || bySKU.SKU != byID.SKU {
		t.Errorf("sku and id lookups disagree: %+v vs %+v", bySKU, byID)
	}

	owned, err := f.engine.GetProductsByManufacturer(ctx, f.maker)
	if err != nil {
		t.Fatalf("GetProductsByManufacturer: %v", err)
	}
	if len(owned) != 1 || owned[0] != p.ID {
		t.Errorf("owned products: got %v, want [%d]", owned, p.ID)
	}

	if _, err := f.engine.GetProductBySKU(ctx, "EGGS"); !caravan.IsNotFound(err) {
		t.Errorf("missing sku: got %v, want not-found", err)
	}
}

func TestCatalogAcceptsZeroPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(0), "Dummy 1", "DUMMY-1")
	if err != nil {
		t.Fatalf("zero-price catalog: %v", err)
	}
	got, err := f.engine.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !got.UnitPrice.IsZero() {
		t.Errorf("unit price: got %s, want zero", got.UnitPrice)
	}

	owned, err := f.engine.GetProductsByManufacturer(ctx, f.maker)
	if err != nil {
		t.Fatalf("GetProductsByManufacturer: %v", err)
	}
	if len(owned) != 1 || owned[0] != p.ID {
		t.Errorf("owned products: got %v, want [%d]", owned, p.ID)
	}

	if _, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(-1), "Dummy 2", "DUMMY-2"); !errors.Is(err, caravan.ErrInvalidPrice) {
		t.Errorf("negative price: got %v, want ErrInvalidPrice", err)
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)

	// Accrue fees, then re-register. The accrued balance must survive.
	f.fund(t, f.customer, types.USD(1000))
	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 10); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}
	if err := f.inventory.SetApprovalForAll(ctx, f.customer, f.engine.Address(), true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}
	if _, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, f.warehouse); err != nil {
		t.Fatalf("ExchangeTokensForProduct: %v", err)
	}

	if err := f.engine.RegisterWarehouse(ctx, f.warehouse, "Renamed", "2 Dock Rd"); err != nil {
		t.Fatalf("re-register warehouse: %v", err)
	}
	w, err := f.engine.GetWarehouse(ctx, f.warehouse)
	if err != nil {
		t.Fatalf("GetWarehouse: %v", err)
	}
	if w.Name != "Central" {
		t.Errorf("re-registration reset the record: name %q", w.Name)
	}
	if w.ClaimableFees.IsZero() {
		t.Error("re-registration wiped accrued fees")
	}

	if err := f.engine.RegisterManufacturer(ctx, f.maker); err != nil {
		t.Errorf("re-register manufacturer: %v", err)
	}
}

func TestShipmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(2), "Whole milk", "MILK"); err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}

	if _, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 0, f.warehouse); !errors.Is(err, caravan.ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := f.engine.AddProductToInventory(ctx, id.NewAddress(), "MILK", 10, f.warehouse); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("non-owner mint: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 10, id.NewAddress()); !errors.Is(err, caravan.ErrWarehouseNotFound) {
		t.Errorf("unknown warehouse: got %v, want ErrWarehouseNotFound", err)
	}

	sh, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 100, f.warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}
	if got := f.tokenBalance(t, f.inventory, f.engine.Address()); got != 100 {
		t.Errorf("engine custody: got %d, want 100", got)
	}

	// Claim before confirmation must fail.
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.maker, sh.ID); !errors.Is(err, caravan.ErrShipmentNotConfirmed) {
		t.Errorf("claim before confirm: got %v, want ErrShipmentNotConfirmed", err)
	}

	// Only the destination warehouse may confirm.
	if err := f.engine.ConfirmProductReceiptByWarehouse(ctx, f.maker, sh.ID); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("confirm by wrong party: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.ConfirmProductReceiptByWarehouse(ctx, f.warehouse, sh.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := f.engine.ConfirmProductReceiptByWarehouse(ctx, f.warehouse, sh.ID); !errors.Is(err, caravan.ErrShipmentNotPending) {
		t.Errorf("double confirm: got %v, want ErrShipmentNotPending", err)
	}

	// Only the originating manufacturer may claim, exactly once.
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.warehouse, sh.ID); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("claim by wrong party: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.maker, sh.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.tokenBalance(t, f.receipts, f.maker); got != 100 {
		t.Errorf("receipt balance: got %d, want 100", got)
	}
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.maker, sh.ID); !errors.Is(err, caravan.ErrShipmentAlreadyClaimed) {
		t.Errorf("double claim: got %v, want ErrShipmentAlreadyClaimed", err)
	}
	if got := f.tokenBalance(t, f.receipts, f.maker); got != 100 {
		t.Errorf("receipt balance after failed double claim: got %d, want 100", got)
	}

	got, err := f.engine.GetShipment(ctx, sh.ID)
	if err != nil {
		t.Fatalf("GetShipment: %v", err)
	}
	if got.Status != shipment.StatusClaimed {
		t.Errorf("final status: got %s, want claimed", got.Status)
	}
}

func TestDerivedPartyViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.AddProductToCatalog(ctx, f.maker, types.USD(2), "Whole milk", "MILK"); err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}
	first, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 40, f.warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}
	second, err := f.engine.AddProductToInventory(ctx, f.maker, "MILK", 60, f.warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}

	m, err := f.engine.GetManufacturer(ctx, f.maker)
	if err != nil {
		t.Fatalf("GetManufacturer: %v", err)
	}
	if len(m.Products) != 1 || len(m.PendingShipments) != 2 || len(m.SettledShipments) != 0 {
		t.Errorf("manufacturer views: products %v pending %v settled %v",
			m.Products, m.PendingShipments, m.SettledShipments)
	}

	w, err := f.engine.GetWarehouse(ctx, f.warehouse)
	if err != nil {
		t.Fatalf("GetWarehouse: %v", err)
	}
	if len(w.PendingShipments) != 2 {
		t.Errorf("warehouse pending shipments: got %v, want both", w.PendingShipments)
	}

	// Settle the first shipment and re-read.
	if err := f.engine.ConfirmProductReceiptByWarehouse(ctx, f.warehouse, first.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := f.engine.ClaimProductReceiptTokens(ctx, f.maker, first.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	m, err = f.engine.GetManufacturer(ctx, f.maker)
	if err != nil {
		t.Fatalf("GetManufacturer: %v", err)
	}
	if len(m.PendingShipments) != 1 || m.PendingShipments[0] != second.ID {
		t.Errorf("pending after settle: got %v, want [%d]", m.PendingShipments, second.ID)
	}
	if len(m.SettledShipments) != 1 || m.SettledShipments[0] != first.ID {
		t.Errorf("settled after settle: got %v, want [%d]", m.SettledShipments, first.ID)
	}
}

func TestDirectPurchaseScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)
	f.fund(t, f.customer, types.USD(1000))

	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(3), 5); !errors.Is(err, caravan.ErrPriceMismatch) {
		t.Errorf("stale price: got %v, want ErrPriceMismatch", err)
	}

	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 5); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}

	if got := f.paymentBalance(t, f.customer); !got.Equal(types.USD(990)) {
		t.Errorf("customer payment balance: got %s, want %s", got, types.USD(990))
	}
	if got := f.tokenBalance(t, f.inventory, f.customer); got != 5 {
		t.Errorf("customer inventory: got %d, want 5", got)
	}
	if got := f.paymentBalance(t, f.engine.Address()); !got.Equal(types.USD(10)) {
		t.Errorf("engine payment balance: got %s, want %s", got, types.USD(10))
	}
	if got := f.tokenBalance(t, f.inventory, f.engine.Address()); got != 95 {
		t.Errorf("engine custody: got %d, want 95", got)
	}
	if got, _ := f.engine.ClaimableTokens(ctx, 1); got != 5 {
		t.Errorf("claimable counter: got %d, want 5", got)
	}

	// Oversized order fails and leaves every balance unchanged.
	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 100); !errors.Is(err, caravan.ErrInsufficientInventory) {
		t.Errorf("oversized order: got %v, want ErrInsufficientInventory", err)
	}
	if got := f.paymentBalance(t, f.customer); !got.Equal(types.USD(990)) {
		t.Errorf("customer balance after failed order: got %s, want %s", got, types.USD(990))
	}
	if got := f.tokenBalance(t, f.inventory, f.engine.Address()); got != 95 {
		t.Errorf("engine custody after failed order: got %d, want 95", got)
	}
	if got, _ := f.engine.ClaimableTokens(ctx, 1); got != 5 {
		t.Errorf("claimable after failed order: got %d, want 5", got)
	}
}

func TestPurchaseFundingGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)

	broke := id.NewAddress()
	if err := f.payments.Mint(ctx, broke, types.USD(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.payments.Approve(ctx, broke, f.engine.Address(), types.USD(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.PurchaseProduct(ctx, broke, "MILK", types.USD(2), 5); !errors.Is(err, caravan.ErrInsufficientFunds) {
		t.Errorf("broke buyer: got %v, want ErrInsufficientFunds", err)
	}

	unapproved := id.NewAddress()
	if err := f.payments.Mint(ctx, unapproved, types.USD(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.PurchaseProduct(ctx, unapproved, "MILK", types.USD(2), 5); !errors.Is(err, caravan.ErrInsufficientAllowance) {
		t.Errorf("unapproved buyer: got %v, want ErrInsufficientAllowance", err)
	}
}

func TestProfitClaimScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)
	f.fund(t, f.customer, types.USD(1000))

	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 10); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}

	if _, err := f.engine.ClaimProfits(ctx, f.customer, "MILK"); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("claim by non-owner: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.ClaimProfits(ctx, f.maker, "MILK"); !errors.Is(err, caravan.ErrNotApproved) {
		t.Errorf("claim without approval: got %v, want ErrNotApproved", err)
	}

	if err := f.receipts.SetApprovalForAll(ctx, f.maker, f.engine.Address(), true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}

	// 10 units at 2 gross 20, 5% protocol and 5% storage retained.
	payout, err := f.engine.ClaimProfits(ctx, f.maker, "MILK")
	if err != nil {
		t.Fatalf("ClaimProfits: %v", err)
	}
	if !payout.Equal(types.USD(18)) {
		t.Errorf("payout: got %s, want %s", payout, types.USD(18))
	}
	if got := f.paymentBalance(t, f.maker); !got.Equal(types.USD(18)) {
		t.Errorf("manufacturer balance: got %s, want %s", got, types.USD(18))
	}
	if got := f.paymentBalance(t, f.engine.Address()); !got.Equal(types.USD(2)) {
		t.Errorf("engine retained: got %s, want %s", got, types.USD(2))
	}
	if got := f.tokenBalance(t, f.receipts, f.maker); got != 90 {
		t.Errorf("receipt balance: got %d, want 90", got)
	}
	if got, _ := f.engine.ClaimableTokens(ctx, 1); got != 0 {
		t.Errorf("claimable after settle: got %d, want 0", got)
	}

	if _, err := f.engine.ClaimProfits(ctx, f.maker, "MILK"); !errors.Is(err, caravan.ErrNothingToClaim) {
		t.Errorf("second claim: got %v, want ErrNothingToClaim", err)
	}
}

func TestStorageFeeRedemptionScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)
	f.fund(t, f.customer, types.USD(1000))

	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 10); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}

	if _, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, id.NewAddress()); !errors.Is(err, caravan.ErrWarehouseNotFound) {
		t.Errorf("unknown warehouse: got %v, want ErrWarehouseNotFound", err)
	}
	if _, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, f.warehouse); !errors.Is(err, caravan.ErrNotApproved) {
		t.Errorf("redeem without approval: got %v, want ErrNotApproved", err)
	}

	if err := f.inventory.SetApprovalForAll(ctx, f.customer, f.engine.Address(), true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}

	units, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, f.warehouse)
	if err != nil {
		t.Fatalf("ExchangeTokensForProduct: %v", err)
	}
	if units != 10 {
		t.Errorf("units redeemed: got %d, want 10", units)
	}
	if got := f.tokenBalance(t, f.inventory, f.customer); got != 0 {
		t.Errorf("customer inventory after redeem: got %d, want 0", got)
	}

	// Storage fee share of 10 units at 2 is 1.
	w, err := f.engine.GetWarehouse(ctx, f.warehouse)
	if err != nil {
		t.Fatalf("GetWarehouse: %v", err)
	}
	if !w.ClaimableFees.Equal(types.USD(1)) {
		t.Errorf("accrued fees: got %s, want %s", w.ClaimableFees, types.USD(1))
	}

	// Empty holders have nothing to redeem.
	if _, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, f.warehouse); !errors.Is(err, caravan.ErrNothingToRedeem) {
		t.Errorf("second redeem: got %v, want ErrNothingToRedeem", err)
	}

	fees, err := f.engine.ClaimStorageFee(ctx, f.warehouse)
	if err != nil {
		t.Fatalf("ClaimStorageFee: %v", err)
	}
	if !fees.Equal(types.USD(1)) {
		t.Errorf("withdrawn fees: got %s, want %s", fees, types.USD(1))
	}
	if got := f.paymentBalance(t, f.warehouse); !got.Equal(types.USD(1)) {
		t.Errorf("warehouse balance: got %s, want %s", got, types.USD(1))
	}

	if _, err := f.engine.ClaimStorageFee(ctx, f.warehouse); !errors.Is(err, caravan.ErrNothingToClaim) {
		t.Errorf("second fee claim: got %v, want ErrNothingToClaim", err)
	}
	if _, err := f.engine.ClaimStorageFee(ctx, f.customer); !errors.Is(err, caravan.ErrUnauthorized) {
		t.Errorf("fee claim by non-warehouse: got %v, want ErrUnauthorized", err)
	}
}

func TestTokenConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listMilk(t)
	f.fund(t, f.customer, types.USD(1000))

	if err := f.engine.PurchaseProduct(ctx, f.customer, "MILK", types.USD(2), 25); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}
	if err := f.inventory.SetApprovalForAll(ctx, f.customer, f.engine.Address(), true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}
	if _, err := f.engine.ExchangeTokensForProduct(ctx, f.customer, f.warehouse); err != nil {
		t.Fatalf("ExchangeTokensForProduct: %v", err)
	}

	// Minted 100, burned 25 on redemption. Every remaining unit is held
	// by someone.
	if out, held := f.inventory.Outstanding(1), f.inventory.TotalHeld(1); out != 75 || held != 75 {
		t.Errorf("conservation: outstanding %d held %d, want 75/75", out, held)
	}
}

var errLedgerOffline = errors.New("ledger offline")

// mintFailLedger injects a Mint failure on demand.
type mintFailLedger struct {
	*assetmem.TokenLedger
	fail bool
}

func (l *mintFailLedger) Mint(ctx context.Context, to id.Address, product catalog.ProductID, amount int64) error {
	if l.fail {
		return errLedgerOffline
	}
	return l.TokenLedger.Mint(ctx, to, product, amount)
}

// transferFailLedger injects a Transfer failure on demand.
type transferFailLedger struct {
	*assetmem.PaymentLedger
	fail bool
}

func (l *transferFailLedger) Transfer(ctx context.Context, from, to id.Address, amount types.Money) error {
	if l.fail {
		return errLedgerOffline
	}
	return l.PaymentLedger.Transfer(ctx, from, to, amount)
}

func TestClaimReopensShipmentOnMintFailure(t *testing.T) {
	ctx := context.Background()
	receipts := &mintFailLedger{TokenLedger: assetmem.NewTokenLedger()}
	inventory := assetmem.NewTokenLedger()
	payments := assetmem.NewPaymentLedger("usd")
	engine := caravan.New(memory.New(), inventory, receipts, payments,
		caravan.WithLogger(slog.New(slog.DiscardHandler)))
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = engine.Stop() })

	maker, warehouse := id.NewAddress(), id.NewAddress()
	if err := engine.RegisterManufacturer(ctx, maker); err != nil {
		t.Fatalf("RegisterManufacturer: %v", err)
	}
	if err := engine.RegisterWarehouse(ctx, warehouse, "Central", "1 Dock Rd"); err != nil {
		t.Fatalf("RegisterWarehouse: %v", err)
	}
	if _, err := engine.AddProductToCatalog(ctx, maker, types.USD(2), "Whole milk", "MILK"); err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}
	sh, err := engine.AddProductToInventory(ctx, maker, "MILK", 100, warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}
	if err := engine.ConfirmProductReceiptByWarehouse(ctx, warehouse, sh.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	receipts.fail = true
	if err := engine.ClaimProductReceiptTokens(ctx, maker, sh.ID); !errors.Is(err, errLedgerOffline) {
		t.Fatalf("claim with dead ledger: got %v, want ledger error", err)
	}

	// The shipment must be claimable again after the failure.
	got, err := engine.GetShipment(ctx, sh.ID)
	if err != nil {
		t.Fatalf("GetShipment: %v", err)
	}
	if got.Status != shipment.StatusConfirmed {
		t.Fatalf("status after failed claim: got %s, want confirmed", got.Status)
	}
	if bal, _ := receipts.BalanceOf(ctx, maker, 1); bal != 0 {
		t.Errorf("receipts after failed claim: got %d, want 0", bal)
	}

	receipts.fail = false
	if err := engine.ClaimProductReceiptTokens(ctx, maker, sh.ID); err != nil {
		t.Fatalf("retried claim: %v", err)
	}
	if bal, _ := receipts.BalanceOf(ctx, maker, 1); bal != 100 {
		t.Errorf("receipts after retry: got %d, want 100", bal)
	}
	if err := engine.ClaimProductReceiptTokens(ctx, maker, sh.ID); !errors.Is(err, caravan.ErrShipmentAlreadyClaimed) {
		t.Errorf("claim after retry: got %v, want ErrShipmentAlreadyClaimed", err)
	}
}

func TestStorageFeeSurvivesPayoutFailure(t *testing.T) {
	ctx := context.Background()
	payments := &transferFailLedger{PaymentLedger: assetmem.NewPaymentLedger("usd")}
	inventory := assetmem.NewTokenLedger()
	receipts := assetmem.NewTokenLedger()
	engine := caravan.New(memory.New(), inventory, receipts, payments,
		caravan.WithLogger(slog.New(slog.DiscardHandler)))
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = engine.Stop() })

	maker, warehouse, customer := id.NewAddress(), id.NewAddress(), id.NewAddress()
	if err := engine.RegisterManufacturer(ctx, maker); err != nil {
		t.Fatalf("RegisterManufacturer: %v", err)
	}
	if err := engine.RegisterWarehouse(ctx, warehouse, "Central", "1 Dock Rd"); err != nil {
		t.Fatalf("RegisterWarehouse: %v", err)
	}
	if _, err := engine.AddProductToCatalog(ctx, maker, types.USD(2), "Whole milk", "MILK"); err != nil {
		t.Fatalf("AddProductToCatalog: %v", err)
	}
	sh, err := engine.AddProductToInventory(ctx, maker, "MILK", 100, warehouse)
	if err != nil {
		t.Fatalf("AddProductToInventory: %v", err)
	}
	if err := engine.ConfirmProductReceiptByWarehouse(ctx, warehouse, sh.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := engine.ClaimProductReceiptTokens(ctx, maker, sh.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := payments.Mint(ctx, customer, types.USD(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := payments.Approve(ctx, customer, engine.Address(), types.USD(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.PurchaseProduct(ctx, customer, "MILK", types.USD(2), 10); err != nil {
		t.Fatalf("PurchaseProduct: %v", err)
	}
	if err := inventory.SetApprovalForAll(ctx, customer, engine.Address(), true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}
	if _, err := engine.ExchangeTokensForProduct(ctx, customer, warehouse); err != nil {
		t.Fatalf("ExchangeTokensForProduct: %v", err)
	}

	payments.fail = true
	if _, err := engine.ClaimStorageFee(ctx, warehouse); !errors.Is(err, errLedgerOffline) {
		t.Fatalf("fee claim with dead ledger: got %v, want ledger error", err)
	}

	// The accrual must still be there for a retry.
	w, err := engine.GetWarehouse(ctx, warehouse)
	if err != nil {
		t.Fatalf("GetWarehouse: %v", err)
	}
	if !w.ClaimableFees.Equal(types.USD(1)) {
		t.Fatalf("fees after failed payout: got %s, want %s", w.ClaimableFees, types.USD(1))
	}

	payments.fail = false
	fees, err := engine.ClaimStorageFee(ctx, warehouse)
	if err != nil {
		t.Fatalf("retried fee claim: %v", err)
	}
	if !fees.Equal(types.USD(1)) {
		t.Errorf("fees paid: got %s, want %s", fees, types.USD(1))
	}
	if bal, _ := payments.BalanceOf(ctx, warehouse); !bal.Equal(types.USD(1)) {
		t.Errorf("warehouse balance: got %s, want %s", bal, types.USD(1))
	}
	if _, err := engine.ClaimStorageFee(ctx, warehouse); !errors.Is(err, caravan.ErrNothingToClaim) {
		t.Errorf("second fee claim: got %v, want ErrNothingToClaim", err)
	}
}
