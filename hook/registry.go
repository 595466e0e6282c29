package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Registry manages all registered hooks and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onPartyRegistered   []OnPartyRegistered
	onProductCataloged  []OnProductCataloged
	onShipmentCreated   []OnShipmentCreated
	onShipmentConfirmed []OnShipmentConfirmed
	onReceiptClaimed    []OnReceiptClaimed
	onSale              []OnSale
	onProfitsClaimed    []OnProfitsClaimed
	onTokensRedeemed    []OnTokensRedeemed
	onStorageFeeClaimed []OnStorageFeeClaimed
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	// Type-switch to cache interfaces
	if v, ok := h.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := h.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := h.(OnPartyRegistered); ok {
		r.onPartyRegistered = append(r.onPartyRegistered, v)
	}
	if v, ok := h.(OnProductCataloged); ok {
		r.onProductCataloged = append(r.onProductCataloged, v)
	}
	if v, ok := h.(OnShipmentCreated); ok {
		r.onShipmentCreated = append(r.onShipmentCreated, v)
	}
	if v, ok := h.(OnShipmentConfirmed); ok {
		r.onShipmentConfirmed = append(r.onShipmentConfirmed, v)
	}
	if v, ok := h.(OnReceiptClaimed); ok {
		r.onReceiptClaimed = append(r.onReceiptClaimed, v)
	}
	if v, ok := h.(OnSale); ok {
		r.onSale = append(r.onSale, v)
	}
	if v, ok := h.(OnProfitsClaimed); ok {
		r.onProfitsClaimed = append(r.onProfitsClaimed, v)
	}
	if v, ok := h.(OnTokensRedeemed); ok {
		r.onTokensRedeemed = append(r.onTokensRedeemed, v)
	}
	if v, ok := h.(OnStorageFeeClaimed); ok {
		r.onStorageFeeClaimed = append(r.onStorageFeeClaimed, v)
	}

	r.logger.Info("hook registered", "name", h.Name())

	return nil
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all hooks that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("hook OnInit failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all hooks that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("hook OnShutdown failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitPartyRegistered emits a party registered event.
func (r *Registry) EmitPartyRegistered(ctx context.Context, kind string, addr id.Address) {
	r.mu.RLock()
	hooks := r.onPartyRegistered
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnPartyRegistered(ctx, kind, addr)
		}); err != nil {
			r.logger.Warn("hook OnPartyRegistered failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitProductCataloged emits a product cataloged event.
func (r *Registry) EmitProductCataloged(ctx context.Context, p *catalog.Product) {
	r.mu.RLock()
	hooks := r.onProductCataloged
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnProductCataloged(ctx, p)
		}); err != nil {
			r.logger.Warn("hook OnProductCataloged failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitShipmentCreated emits a shipment created event.
func (r *Registry) EmitShipmentCreated(ctx context.Context, sh *shipment.Shipment) {
	r.mu.RLock()
	hooks := r.onShipmentCreated
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShipmentCreated(ctx, sh)
		}); err != nil {
			r.logger.Warn("hook OnShipmentCreated failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitShipmentConfirmed emits a shipment confirmed event.
func (r *Registry) EmitShipmentConfirmed(ctx context.Context, sh *shipment.Shipment) {
	r.mu.RLock()
	hooks := r.onShipmentConfirmed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShipmentConfirmed(ctx, sh)
		}); err != nil {
			r.logger.Warn("hook OnShipmentConfirmed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitReceiptClaimed emits a receipt claimed event.
func (r *Registry) EmitReceiptClaimed(ctx context.Context, claim ReceiptClaim) {
	r.mu.RLock()
	hooks := r.onReceiptClaimed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnReceiptClaimed(ctx, claim)
		}); err != nil {
			r.logger.Warn("hook OnReceiptClaimed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitSale emits a sale event.
func (r *Registry) EmitSale(ctx context.Context, sale Sale) {
	r.mu.RLock()
	hooks := r.onSale
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnSale(ctx, sale)
		}); err != nil {
			r.logger.Warn("hook OnSale failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitProfitsClaimed emits a profits claimed event.
func (r *Registry) EmitProfitsClaimed(ctx context.Context, settlement Settlement) {
	r.mu.RLock()
	hooks := r.onProfitsClaimed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnProfitsClaimed(ctx, settlement)
		}); err != nil {
			r.logger.Warn("hook OnProfitsClaimed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitTokensRedeemed emits a tokens redeemed event.
func (r *Registry) EmitTokensRedeemed(ctx context.Context, redemption Redemption) {
	r.mu.RLock()
	hooks := r.onTokensRedeemed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTokensRedeemed(ctx, redemption)
		}); err != nil {
			r.logger.Warn("hook OnTokensRedeemed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitStorageFeeClaimed emits a storage fee claimed event.
func (r *Registry) EmitStorageFeeClaimed(ctx context.Context, warehouse id.Address, fees types.Money) {
	r.mu.RLock()
	hooks := r.onStorageFeeClaimed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnStorageFeeClaimed(ctx, warehouse, fees)
		}); err != nil {
			r.logger.Warn("hook OnStorageFeeClaimed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a hook function with a timeout.
// Hooks should never block the marketplace pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
