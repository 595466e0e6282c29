package caravan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/caravanhq/caravan/asset"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/hook"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/party"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/store"
	"github.com/caravanhq/caravan/types"
)

// Default fee rates in basis points of gross sale value.
const (
	DefaultProtocolFeeBps int64 = 500
	DefaultStorageFeeBps  int64 = 500
)

// Engine is the marketplace engine. It owns the catalog, the party
// registry, the shipment table and the settlement counters, and it holds
// a custodial account on the three asset ledgers it is constructed with.
//
// Mutating operations are serialized: each one either fully applies every
// state change or none of it. Validation runs before any asset-ledger
// call, and local state commits after the last one, so a failed ledger
// call aborts the operation with zero local mutation.
type Engine struct {
	store     store.Store
	inventory asset.TokenLedger
	receipts  asset.TokenLedger
	payments  asset.PaymentLedger
	hooks     *hook.Registry
	logger    *slog.Logger

	// addr is the engine's own account on the asset ledgers. Unsold
	// inventory and undistributed sale proceeds sit under it.
	addr id.Address

	// mu gives mutating operations a total order.
	mu sync.Mutex

	// Configuration
	currency       string
	protocolFeeBps int64
	storageFeeBps  int64
}

// New creates a new Engine instance backed by the given store and asset
// ledgers.
func New(s store.Store, inventory, receipts asset.TokenLedger, payments asset.PaymentLedger, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		inventory:      inventory,
		receipts:       receipts,
		payments:       payments,
		hooks:          hook.NewRegistry(),
		logger:         slog.Default(),
		addr:           id.NewAddress(),
		currency:       "usd",
		protocolFeeBps: DefaultProtocolFeeBps,
		storageFeeBps:  DefaultStorageFeeBps,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.hooks.WithLogger(logger)
	}
}

// WithHook registers a hook.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) {
		_ = e.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithFees sets the protocol and storage fee rates in basis points.
func WithFees(protocolBps, storageBps int64) Option {
	return func(e *Engine) {
		e.protocolFeeBps = protocolBps
		e.storageFeeBps = storageBps
	}
}

// WithCurrency sets the payment currency every listed price must use.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = currency
	}
}

// WithAddress sets the engine's custodial account address.
func WithAddress(addr id.Address) Option {
	return func(e *Engine) {
		e.addr = addr
	}
}

// Start migrates the store and initializes hooks.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.hooks.EmitInit(ctx, e)

	e.logger.Info("engine started",
		"address", e.addr,
		"currency", e.currency,
		"protocol_fee_bps", e.protocolFeeBps,
		"storage_fee_bps", e.storageFeeBps,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.hooks.EmitShutdown(context.Background())
	return e.store.Close()
}

// Address returns the engine's custodial account address. Buyers approve
// this address on the payment ledger; manufacturers approve it as an
// operator on the receipt ledger; redeemers approve it on the inventory
// ledger.
func (e *Engine) Address() id.Address { return e.addr }

// Currency returns the payment currency the engine settles in.
func (e *Engine) Currency() string { return e.currency }

// ──────────────────────────────────────────────────
// Party Registry
// ──────────────────────────────────────────────────

// RegisterManufacturer registers the caller as a manufacturer.
// Re-registration is a no-op and never resets existing state.
func (e *Engine) RegisterManufacturer(ctx context.Context, caller id.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &party.Manufacturer{
		Entity:  types.NewEntity(),
		Address: caller,
	}
	if err := e.store.CreateManufacturer(ctx, m); err != nil {
		if IsAlreadyRegistered(err) {
			return nil
		}
		return err
	}

	e.hooks.EmitPartyRegistered(ctx, string(party.KindManufacturer), caller)
	e.logger.Info("manufacturer registered", "address", caller)
	return nil
}

// RegisterWarehouse registers the caller as a warehouse.
// Re-registration is a no-op and never resets accrued fees.
func (e *Engine) RegisterWarehouse(ctx context.Context, caller id.Address, name, physicalAddress string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := &party.Warehouse{
		Entity:          types.NewEntity(),
		Address:         caller,
		Name:            name,
		PhysicalAddress: physicalAddress,
		ClaimableFees:   types.Zero(e.currency),
	}
	if err := e.store.CreateWarehouse(ctx, w); err != nil {
		if IsAlreadyRegistered(err) {
			return nil
		}
		return err
	}

	e.hooks.EmitPartyRegistered(ctx, string(party.KindWarehouse), caller)
	e.logger.Info("warehouse registered", "address", caller, "name", name)
	return nil
}

// RegisterStorefront registers the caller as a reselling storefront.
// The markup is added to the listed unit price on every proxied sale.
// Re-registration is a no-op and never changes the stored markup.
func (e *Engine) RegisterStorefront(ctx context.Context, caller id.Address, name string, markup types.Money) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if markup.Currency != e.currency {
		return ErrCurrencyMismatch
	}
	if markup.IsNegative() {
		return ErrInvalidPrice
	}

	sf := &party.Storefront{
		Entity:  types.NewEntity(),
		Address: caller,
		Name:    name,
		Markup:  markup,
	}
	if err := e.store.CreateStorefront(ctx, sf); err != nil {
		if IsAlreadyRegistered(err) {
			return nil
		}
		return err
	}

	e.hooks.EmitPartyRegistered(ctx, string(party.KindStorefront), caller)
	e.logger.Info("storefront registered", "address", caller, "name", name, "markup", markup)
	return nil
}

// IsManufacturer reports whether addr holds the manufacturer role.
func (e *Engine) IsManufacturer(ctx context.Context, addr id.Address) bool {
	_, err := e.store.GetManufacturer(ctx, addr)
	return err == nil
}

// IsWarehouse reports whether addr holds the warehouse role.
func (e *Engine) IsWarehouse(ctx context.Context, addr id.Address) bool {
	_, err := e.store.GetWarehouse(ctx, addr)
	return err == nil
}

// IsStorefront reports whether addr holds the storefront role.
func (e *Engine) IsStorefront(ctx context.Context, addr id.Address) bool {
	_, err := e.store.GetStorefront(ctx, addr)
	return err == nil
}

// GetManufacturer returns the manufacturer record with its derived views
// filled in: owned products, pending shipments and settled shipments.
func (e *Engine) GetManufacturer(ctx context.Context, addr id.Address) (*party.Manufacturer, error) {
	m, err := e.store.GetManufacturer(ctx, addr)
	if err != nil {
		return nil, err
	}

	if m.Products, err = e.store.ListProductIDsByManufacturer(ctx, addr); err != nil {
		return nil, err
	}
	if m.PendingShipments, err = e.store.ListShipmentIDs(ctx, shipment.Query{From: addr, Status: shipment.StatusPending}); err != nil {
		return nil, err
	}
	if m.SettledShipments, err = e.store.ListShipmentIDs(ctx, shipment.Query{From: addr, Status: shipment.StatusClaimed}); err != nil {
		return nil, err
	}
	return m, nil
}

// GetWarehouse returns the warehouse record with its incoming pending
// shipments filled in.
func (e *Engine) GetWarehouse(ctx context.Context, addr id.Address) (*party.Warehouse, error) {
	w, err := e.store.GetWarehouse(ctx, addr)
	if err != nil {
		return nil, err
	}

	if w.PendingShipments, err = e.store.ListShipmentIDs(ctx, shipment.Query{To: addr, Status: shipment.StatusPending}); err != nil {
		return nil, err
	}
	return w, nil
}

// GetStorefront returns the storefront record.
func (e *Engine) GetStorefront(ctx context.Context, addr id.Address) (*party.Storefront, error) {
	return e.store.GetStorefront(ctx, addr)
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

// AddProductToCatalog lists a new product under the calling manufacturer.
// The sku must be unused and the price must be non-negative in the
// engine's currency. A zero price lists the product as free.
func (e *Engine) AddProductToCatalog(ctx context.Context, caller id.Address, unitPrice types.Money, name, sku string) (*catalog.Product, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sku == "" {
		return nil, ErrInvalidSKU
	}
	if unitPrice.Currency != e.currency {
		return nil, ErrCurrencyMismatch
	}
	if unitPrice.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if !e.IsManufacturer(ctx, caller) {
		return nil, ErrUnauthorized
	}

	p := &catalog.Product{
		Entity:       types.NewEntity(),
		SKU:          sku,
		Name:         name,
		UnitPrice:    unitPrice,
		Manufacturer: caller,
	}
	if err := e.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	e.hooks.EmitProductCataloged(ctx, p)
	e.logger.Info("product cataloged",
		"product_id", p.ID,
		"sku", p.SKU,
		"unit_price", p.UnitPrice,
		"manufacturer", caller,
	)
	return p, nil
}

// GetProduct retrieves a product by id.
func (e *Engine) GetProduct(ctx context.Context, productID catalog.ProductID) (*catalog.Product, error) {
	return e.store.GetProduct(ctx, productID)
}

// GetProductBySKU retrieves a product by sku.
func (e *Engine) GetProductBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	return e.store.GetProductBySKU(ctx, sku)
}

// ListProducts returns every listed product in id order.
func (e *Engine) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	return e.store.ListProducts(ctx)
}

// GetProductsByManufacturer returns the product ids owned by addr.
func (e *Engine) GetProductsByManufacturer(ctx context.Context, addr id.Address) ([]catalog.ProductID, error) {
	return e.store.ListProductIDsByManufacturer(ctx, addr)
}

// ──────────────────────────────────────────────────
// Shipments
// ──────────────────────────────────────────────────

// AddProductToInventory mints quantity inventory tokens for the product
// into engine custody and opens a pending shipment from the calling
// manufacturer to the named warehouse. The engine, not any party, holds
// sellable stock.
func (e *Engine) AddProductToInventory(ctx context.Context, caller id.Address, sku string, quantity int64, warehouse id.Address) (*shipment.Shipment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := e.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if !p.Manufacturer.Equal(caller) {
		return nil, ErrUnauthorized
	}
	if !e.IsWarehouse(ctx, warehouse) {
		return nil, ErrWarehouseNotFound
	}

	if err := e.inventory.Mint(ctx, e.addr, p.ID, quantity); err != nil {
		return nil, err
	}

	sh := &shipment.Shipment{
		Entity:    types.NewEntity(),
		ProductID: p.ID,
		Quantity:  quantity,
		From:      caller,
		To:        warehouse,
		Status:    shipment.StatusPending,
	}
	if err := e.store.CreateShipment(ctx, sh); err != nil {
		// Unwind the mint so custody matches the shipment table.
		if burnErr := e.inventory.BurnFrom(ctx, e.addr, e.addr, p.ID, quantity); burnErr != nil {
			e.logger.Error("failed to unwind mint after shipment create failure",
				"product_id", p.ID,
				"quantity", quantity,
				"error", burnErr,
			)
		}
		return nil, err
	}

	e.hooks.EmitShipmentCreated(ctx, sh)
	e.logger.Info("shipment created",
		"shipment_id", sh.ID,
		"product_id", p.ID,
		"quantity", quantity,
		"warehouse", warehouse,
	)
	return sh, nil
}

// ConfirmProductReceiptByWarehouse acknowledges physical receipt of a
// pending shipment. Only the destination warehouse may confirm. No asset
// movement happens here.
func (e *Engine) ConfirmProductReceiptByWarehouse(ctx context.Context, caller id.Address, shipmentID shipment.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sh, err := e.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if !sh.To.Equal(caller) {
		return ErrUnauthorized
	}

	if err := e.store.AdvanceShipment(ctx, shipmentID, shipment.StatusPending, shipment.StatusConfirmed); err != nil {
		return err
	}

	sh.Status = shipment.StatusConfirmed
	e.hooks.EmitShipmentConfirmed(ctx, sh)
	e.logger.Info("shipment confirmed", "shipment_id", shipmentID, "warehouse", caller)
	return nil
}

// ClaimProductReceiptTokens mints receipt tokens equal to the shipment
// quantity to the originating manufacturer, exactly once per shipment.
// The shipment must be confirmed and not yet claimed.
func (e *Engine) ClaimProductReceiptTokens(ctx context.Context, caller id.Address, shipmentID shipment.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sh, err := e.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if !sh.From.Equal(caller) {
		return ErrUnauthorized
	}
	if !sh.Status.CanAdvanceTo(shipment.StatusClaimed) {
		if sh.Status == shipment.StatusClaimed {
			return ErrShipmentAlreadyClaimed
		}
		return ErrShipmentNotConfirmed
	}

	// The status swap settles the claim; no receipts exist until it wins.
	if err := e.store.AdvanceShipment(ctx, shipmentID, shipment.StatusConfirmed, shipment.StatusClaimed); err != nil {
		return err
	}
	if err := e.receipts.Mint(ctx, caller, sh.ProductID, sh.Quantity); err != nil {
		if rbErr := e.store.AdvanceShipment(ctx, shipmentID, shipment.StatusClaimed, shipment.StatusConfirmed); rbErr != nil {
			e.logger.Error("failed to reopen shipment after receipt mint failure",
				"shipment_id", shipmentID,
				"error", rbErr,
			)
		}
		return err
	}

	e.hooks.EmitReceiptClaimed(ctx, hook.ReceiptClaim{
		Manufacturer: caller,
		ShipmentID:   shipmentID,
		ProductID:    sh.ProductID,
		Quantity:     sh.Quantity,
	})
	e.logger.Info("receipt tokens claimed",
		"shipment_id", shipmentID,
		"product_id", sh.ProductID,
		"quantity", sh.Quantity,
	)
	return nil
}

// GetShipment retrieves a shipment by id.
func (e *Engine) GetShipment(ctx context.Context, shipmentID shipment.ID) (*shipment.Shipment, error) {
	return e.store.GetShipment(ctx, shipmentID)
}

// ──────────────────────────────────────────────────
// Marketplace
// ──────────────────────────────────────────────────

// PurchaseProduct sells quantity units of the product to the caller at
// the listed price. The caller must have approved the engine's address on
// the payment ledger for at least unit price times quantity. The expected
// price guards the buyer against a listing change between quote and
// purchase.
func (e *Engine) PurchaseProduct(ctx context.Context, caller id.Address, sku string, expectedUnitPrice types.Money, quantity int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p, err := e.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if !expectedUnitPrice.Equal(p.UnitPrice) {
		return ErrPriceMismatch
	}

	custody, err := e.inventory.BalanceOf(ctx, e.addr, p.ID)
	if err != nil {
		return err
	}
	if custody < quantity {
		return ErrInsufficientInventory
	}

	total := p.UnitPrice.Multiply(quantity)

	balance, err := e.payments.BalanceOf(ctx, caller)
	if err != nil {
		return err
	}
	if balance.LessThan(total) {
		return ErrInsufficientFunds
	}
	allowance, err := e.payments.Allowance(ctx, caller, e.addr)
	if err != nil {
		return err
	}
	if allowance.LessThan(total) {
		return ErrInsufficientAllowance
	}

	if err := e.payments.TransferFrom(ctx, e.addr, caller, e.addr, total); err != nil {
		return err
	}
	if err := e.inventory.Transfer(ctx, e.addr, caller, p.ID, quantity); err != nil {
		return err
	}
	if err := e.store.AddClaimable(ctx, p.ID, quantity); err != nil {
		return err
	}

	e.hooks.EmitSale(ctx, hook.Sale{
		Buyer:       caller,
		Recipient:   caller,
		ProductID:   p.ID,
		Quantity:    quantity,
		Total:       total,
		ProtocolFee: total.BasisPoints(e.protocolFeeBps),
		StorageFee:  total.BasisPoints(e.storageFeeBps),
	})
	e.logger.Info("product purchased",
		"product_id", p.ID,
		"quantity", quantity,
		"total", total,
		"buyer", caller,
	)
	return nil
}

// ClaimProfits settles every unsettled sale of the product to its
// manufacturer. The engine burns receipt tokens equal to the claimable
// counter from the caller, pays out the gross sale value minus the
// protocol and storage fee shares, and resets the counter. The caller
// must have approved the engine as an operator on the receipt ledger.
func (e *Engine) ClaimProfits(ctx context.Context, caller id.Address, sku string) (types.Money, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return types.Money{}, err
	}
	if !p.Manufacturer.Equal(caller) {
		return types.Money{}, ErrUnauthorized
	}

	claimable, err := e.store.Claimable(ctx, p.ID)
	if err != nil {
		return types.Money{}, err
	}
	if claimable == 0 {
		return types.Money{}, ErrNothingToClaim
	}

	approved, err := e.receipts.IsApprovedForAll(ctx, caller, e.addr)
	if err != nil {
		return types.Money{}, err
	}
	if !approved {
		return types.Money{}, ErrNotApproved
	}
	held, err := e.receipts.BalanceOf(ctx, caller, p.ID)
	if err != nil {
		return types.Money{}, err
	}
	if held < claimable {
		return types.Money{}, ErrInsufficientReceipts
	}

	gross := p.UnitPrice.Multiply(claimable)
	protocolFee := gross.BasisPoints(e.protocolFeeBps)
	storageFee := gross.BasisPoints(e.storageFeeBps)
	payout := gross.Subtract(protocolFee).Subtract(storageFee)

	if err := e.receipts.BurnFrom(ctx, e.addr, caller, p.ID, claimable); err != nil {
		return types.Money{}, err
	}
	if err := e.payments.Transfer(ctx, e.addr, caller, payout); err != nil {
		return types.Money{}, err
	}
	if _, err := e.store.ResetClaimable(ctx, p.ID); err != nil {
		return types.Money{}, err
	}

	e.hooks.EmitProfitsClaimed(ctx, hook.Settlement{
		Manufacturer: caller,
		ProductID:    p.ID,
		Quantity:     claimable,
		Gross:        gross,
		Fees:         protocolFee.Add(storageFee),
		Payout:       payout,
	})
	e.logger.Info("profits claimed",
		"product_id", p.ID,
		"quantity", claimable,
		"payout", payout,
		"manufacturer", caller,
	)
	return payout, nil
}

// ExchangeTokensForProduct burns the caller's entire inventory token
// balance across all products, redeeming physical fulfillment from the
// named warehouse. The warehouse accrues the storage fee share of the
// listed value of everything redeemed. The caller must have approved the
// engine as an operator on the inventory ledger. Returns the total units
// redeemed.
func (e *Engine) ExchangeTokensForProduct(ctx context.Context, caller id.Address, warehouse id.Address) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.IsWarehouse(ctx, warehouse) {
		return 0, ErrWarehouseNotFound
	}
	approved, err := e.inventory.IsApprovedForAll(ctx, caller, e.addr)
	if err != nil {
		return 0, err
	}
	if !approved {
		return 0, ErrNotApproved
	}

	products, err := e.store.ListProducts(ctx)
	if err != nil {
		return 0, err
	}

	type holding struct {
		product *catalog.Product
		units   int64
	}
	var held []holding
	var total int64
	for _, p := range products {
		units, err := e.inventory.BalanceOf(ctx, caller, p.ID)
		if err != nil {
			return 0, err
		}
		if units > 0 {
			held = append(held, holding{product: p, units: units})
			total += units
		}
	}
	if total == 0 {
		return 0, ErrNothingToRedeem
	}

	fees := types.Zero(e.currency)
	for _, h := range held {
		if err := e.inventory.BurnFrom(ctx, e.addr, caller, h.product.ID, h.units); err != nil {
			return 0, err
		}
		fees = fees.Add(h.product.UnitPrice.Multiply(h.units).BasisPoints(e.storageFeeBps))
	}
	if err := e.store.AccrueStorageFee(ctx, warehouse, fees); err != nil {
		return 0, err
	}

	for _, h := range held {
		e.hooks.EmitTokensRedeemed(ctx, hook.Redemption{
			Holder:    caller,
			Warehouse: warehouse,
			ProductID: h.product.ID,
			Quantity:  h.units,
		})
	}
	e.logger.Info("tokens redeemed",
		"holder", caller,
		"warehouse", warehouse,
		"units", total,
		"storage_fees", fees,
	)
	return total, nil
}

// ClaimStorageFee pays the calling warehouse its full accrued fee balance
// and resets it to zero.
func (e *Engine) ClaimStorageFee(ctx context.Context, caller id.Address) (types.Money, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, err := e.store.GetWarehouse(ctx, caller)
	if err != nil {
		if IsNotFound(err) {
			return types.Money{}, ErrUnauthorized
		}
		return types.Money{}, err
	}
	if w.ClaimableFees.IsZero() {
		return types.Money{}, ErrNothingToClaim
	}

	// The accrual is zeroed before the payout; the withdrawal decides
	// which claimant gets paid.
	fees, err := e.store.WithdrawStorageFees(ctx, caller)
	if err != nil {
		return types.Money{}, err
	}
	if err := e.payments.Transfer(ctx, e.addr, caller, fees); err != nil {
		if accErr := e.store.AccrueStorageFee(ctx, caller, fees); accErr != nil {
			e.logger.Error("failed to restore fee balance after payout failure",
				"warehouse", caller,
				"fees", fees,
				"error", accErr,
			)
		}
		return types.Money{}, err
	}

	e.hooks.EmitStorageFeeClaimed(ctx, caller, fees)
	e.logger.Info("storage fees claimed", "warehouse", caller, "fees", fees)
	return fees, nil
}

// ClaimableTokens returns the count of sold-but-unsettled units for the
// product.
func (e *Engine) ClaimableTokens(ctx context.Context, productID catalog.ProductID) (int64, error) {
	return e.store.Claimable(ctx, productID)
}
