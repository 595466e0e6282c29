// Package audithook bridges Caravan lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// any particular audit system directly. Callers inject a RecorderFunc
// adapter that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/hook"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Compile-time interface checks.
var (
	_ hook.Hook                = (*Extension)(nil)
	_ hook.OnPartyRegistered   = (*Extension)(nil)
	_ hook.OnProductCataloged  = (*Extension)(nil)
	_ hook.OnShipmentCreated   = (*Extension)(nil)
	_ hook.OnShipmentConfirmed = (*Extension)(nil)
	_ hook.OnReceiptClaimed    = (*Extension)(nil)
	_ hook.OnSale              = (*Extension)(nil)
	_ hook.OnProfitsClaimed    = (*Extension)(nil)
	_ hook.OnTokensRedeemed    = (*Extension)(nil)
	_ hook.OnStorageFeeClaimed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the package carries no backend dependency; callers
// inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Caravan lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnPartyRegistered implements hook.OnPartyRegistered.
func (e *Extension) OnPartyRegistered(ctx context.Context, kind string, addr id.Address) error {
	return e.record(ctx, ActionPartyRegistered, SeverityInfo, OutcomeSuccess,
		ResourceParty, addr.String(), CategoryRegistry, nil,
		"kind", kind,
		"address", addr.String(),
	)
}

// OnProductCataloged implements hook.OnProductCataloged.
func (e *Extension) OnProductCataloged(ctx context.Context, p *catalog.Product) error {
	return e.record(ctx, ActionProductCataloged, SeverityInfo, OutcomeSuccess,
		ResourceProduct, strconv.FormatUint(uint64(p.ID), 10), CategoryRegistry, nil,
		"sku", p.SKU,
		"unit_price", p.UnitPrice.String(),
		"manufacturer", p.Manufacturer.String(),
	)
}

// ──────────────────────────────────────────────────
// Shipment hooks
// ──────────────────────────────────────────────────

// OnShipmentCreated implements hook.OnShipmentCreated.
func (e *Extension) OnShipmentCreated(ctx context.Context, sh *shipment.Shipment) error {
	return e.record(ctx, ActionShipmentCreated, SeverityInfo, OutcomeSuccess,
		ResourceShipment, strconv.FormatUint(uint64(sh.ID), 10), CategoryLogistics, nil,
		"product_id", uint64(sh.ProductID),
		"quantity", sh.Quantity,
		"from", sh.From.String(),
		"to", sh.To.String(),
	)
}

// OnShipmentConfirmed implements hook.OnShipmentConfirmed.
func (e *Extension) OnShipmentConfirmed(ctx context.Context, sh *shipment.Shipment) error {
	return e.record(ctx, ActionShipmentConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceShipment, strconv.FormatUint(uint64(sh.ID), 10), CategoryLogistics, nil,
		"warehouse", sh.To.String(),
	)
}

// OnReceiptClaimed implements hook.OnReceiptClaimed.
func (e *Extension) OnReceiptClaimed(ctx context.Context, claim hook.ReceiptClaim) error {
	return e.record(ctx, ActionReceiptClaimed, SeverityInfo, OutcomeSuccess,
		ResourceShipment, strconv.FormatUint(uint64(claim.ShipmentID), 10), CategoryLogistics, nil,
		"manufacturer", claim.Manufacturer.String(),
		"product_id", uint64(claim.ProductID),
		"quantity", claim.Quantity,
	)
}

// ──────────────────────────────────────────────────
// Marketplace hooks
// ──────────────────────────────────────────────────

// OnSale implements hook.OnSale.
func (e *Extension) OnSale(ctx context.Context, sale hook.Sale) error {
	return e.record(ctx, ActionSale, SeverityInfo, OutcomeSuccess,
		ResourceSale, strconv.FormatUint(uint64(sale.ProductID), 10), CategoryCommerce, nil,
		"buyer", sale.Buyer.String(),
		"quantity", sale.Quantity,
		"total", sale.Total.String(),
	)
}

// OnProfitsClaimed implements hook.OnProfitsClaimed.
func (e *Extension) OnProfitsClaimed(ctx context.Context, s hook.Settlement) error {
	return e.record(ctx, ActionProfitsClaimed, SeverityInfo, OutcomeSuccess,
		ResourceClaim, strconv.FormatUint(uint64(s.ProductID), 10), CategorySettlement, nil,
		"manufacturer", s.Manufacturer.String(),
		"quantity", s.Quantity,
		"gross", s.Gross.String(),
		"payout", s.Payout.String(),
	)
}

// OnTokensRedeemed implements hook.OnTokensRedeemed.
func (e *Extension) OnTokensRedeemed(ctx context.Context, r hook.Redemption) error {
	return e.record(ctx, ActionTokensRedeemed, SeverityInfo, OutcomeSuccess,
		ResourceClaim, strconv.FormatUint(uint64(r.ProductID), 10), CategorySettlement, nil,
		"holder", r.Holder.String(),
		"warehouse", r.Warehouse.String(),
		"quantity", r.Quantity,
	)
}

// OnStorageFeeClaimed implements hook.OnStorageFeeClaimed.
func (e *Extension) OnStorageFeeClaimed(ctx context.Context, warehouse id.Address, fees types.Money) error {
	return e.record(ctx, ActionStorageFeeClaimed, SeverityInfo, OutcomeSuccess,
		ResourceClaim, warehouse.String(), CategorySettlement, nil,
		"warehouse", warehouse.String(),
		"fees", fees.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
