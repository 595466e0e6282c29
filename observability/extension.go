// Package observability provides a metrics extension for Caravan that
// records lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/hook"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook                = (*MetricsExtension)(nil)
	_ hook.OnInit              = (*MetricsExtension)(nil)
	_ hook.OnPartyRegistered   = (*MetricsExtension)(nil)
	_ hook.OnProductCataloged  = (*MetricsExtension)(nil)
	_ hook.OnShipmentCreated   = (*MetricsExtension)(nil)
	_ hook.OnShipmentConfirmed = (*MetricsExtension)(nil)
	_ hook.OnReceiptClaimed    = (*MetricsExtension)(nil)
	_ hook.OnSale              = (*MetricsExtension)(nil)
	_ hook.OnProfitsClaimed    = (*MetricsExtension)(nil)
	_ hook.OnTokensRedeemed    = (*MetricsExtension)(nil)
	_ hook.OnStorageFeeClaimed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine hook to automatically track marketplace metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	PartiesRegistered Counter
	ProductsCataloged Counter

	// Shipment metrics
	ShipmentsCreated   Counter
	ShipmentsConfirmed Counter
	ReceiptsClaimed    Counter
	ShipmentQuantity   Histogram

	// Marketplace metrics
	Sales          Counter
	UnitsSold      Counter
	SaleTotal      Histogram
	ProfitsClaimed Counter
	PayoutAmount   Histogram
	UnitsRedeemed  Counter
	StorageFeePaid Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Registry metrics
		PartiesRegistered: factory.Counter("caravan.party.registered"),
		ProductsCataloged: factory.Counter("caravan.product.cataloged"),

		// Shipment metrics
		ShipmentsCreated:   factory.Counter("caravan.shipment.created"),
		ShipmentsConfirmed: factory.Counter("caravan.shipment.confirmed"),
		ReceiptsClaimed:    factory.Counter("caravan.receipt.claimed"),
		ShipmentQuantity:   factory.Histogram("caravan.shipment.quantity"),

		// Marketplace metrics
		Sales:          factory.Counter("caravan.sale.count"),
		UnitsSold:      factory.Counter("caravan.sale.units"),
		SaleTotal:      factory.Histogram("caravan.sale.total_amount"),
		ProfitsClaimed: factory.Counter("caravan.profits.claimed"),
		PayoutAmount:   factory.Histogram("caravan.profits.payout_amount"),
		UnitsRedeemed:  factory.Counter("caravan.redemption.units"),
		StorageFeePaid: factory.Counter("caravan.storage_fee.claimed"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements hook.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnPartyRegistered implements hook.OnPartyRegistered.
func (m *MetricsExtension) OnPartyRegistered(_ context.Context, _ string, _ id.Address) error {
	m.PartiesRegistered.Inc()
	return nil
}

// OnProductCataloged implements hook.OnProductCataloged.
func (m *MetricsExtension) OnProductCataloged(_ context.Context, _ *catalog.Product) error {
	m.ProductsCataloged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Shipment hooks
// ──────────────────────────────────────────────────

// OnShipmentCreated implements hook.OnShipmentCreated.
func (m *MetricsExtension) OnShipmentCreated(_ context.Context, sh *shipment.Shipment) error {
	m.ShipmentsCreated.Inc()
	m.ShipmentQuantity.Observe(float64(sh.Quantity))
	return nil
}

// OnShipmentConfirmed implements hook.OnShipmentConfirmed.
func (m *MetricsExtension) OnShipmentConfirmed(_ context.Context, _ *shipment.Shipment) error {
	m.ShipmentsConfirmed.Inc()
	return nil
}

// OnReceiptClaimed implements hook.OnReceiptClaimed.
func (m *MetricsExtension) OnReceiptClaimed(_ context.Context, _ hook.ReceiptClaim) error {
	m.ReceiptsClaimed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Marketplace hooks
// ──────────────────────────────────────────────────

// OnSale implements hook.OnSale.
func (m *MetricsExtension) OnSale(_ context.Context, sale hook.Sale) error {
	m.Sales.Inc()
	m.UnitsSold.Add(float64(sale.Quantity))
	m.SaleTotal.Observe(float64(sale.Total.Amount))
	return nil
}

// OnProfitsClaimed implements hook.OnProfitsClaimed.
func (m *MetricsExtension) OnProfitsClaimed(_ context.Context, s hook.Settlement) error {
	m.ProfitsClaimed.Inc()
	m.PayoutAmount.Observe(float64(s.Payout.Amount))
	return nil
}

// OnTokensRedeemed implements hook.OnTokensRedeemed.
func (m *MetricsExtension) OnTokensRedeemed(_ context.Context, r hook.Redemption) error {
	m.UnitsRedeemed.Add(float64(r.Quantity))
	return nil
}

// OnStorageFeeClaimed implements hook.OnStorageFeeClaimed.
func (m *MetricsExtension) OnStorageFeeClaimed(_ context.Context, _ id.Address, _ types.Money) error {
	m.StorageFeePaid.Inc()
	return nil
}
