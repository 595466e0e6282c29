// Package caravan provides a multi-party supply-chain marketplace engine
// for Go applications.
//
// Caravan is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A product catalog with unique skus and dense product ids
//   - A party registry for manufacturers, warehouses and storefronts
//   - A shipment state machine (pending, confirmed, claimed) with an
//     immutable audit trail
//   - Purchase execution, direct or proxied through a reselling storefront
//   - Fee-splitting profit settlement and warehouse storage-fee redemption
//   - Pluggable hooks for auditing and metrics
//
// # Quick Start
//
// Create an engine with a store and the three asset ledgers it settles
// through:
//
//	import (
//	    "github.com/caravanhq/caravan"
//	    assetmem "github.com/caravanhq/caravan/asset/memory"
//	    "github.com/caravanhq/caravan/store/memory"
//	)
//
//	inventory := assetmem.NewTokenLedger()
//	receipts := assetmem.NewTokenLedger()
//	payments := assetmem.NewPaymentLedger("usd")
//
//	engine := caravan.New(memory.New(), inventory, receipts, payments)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Manufacturers register, list products and move stock into engine
// custody through shipments:
//
//	engine.RegisterManufacturer(ctx, maker)
//	engine.AddProductToCatalog(ctx, maker, caravan.USD(200), "Whole milk", "MILK")
//	sh, _ := engine.AddProductToInventory(ctx, maker, "MILK", 100, warehouse)
//
// The destination warehouse confirms receipt, after which the
// manufacturer claims receipt tokens for the shipment:
//
//	engine.ConfirmProductReceiptByWarehouse(ctx, warehouse, sh.ID)
//	engine.ClaimProductReceiptTokens(ctx, maker, sh.ID)
//
// Customers approve the engine on the payment ledger and buy at the
// listed price; manufacturers later settle proceeds, minus the protocol
// and storage fee shares, by burning their receipt tokens:
//
//	payments.Approve(ctx, customer, engine.Address(), caravan.USD(1000))
//	engine.PurchaseProduct(ctx, customer, "MILK", caravan.USD(200), 5)
//	payout, _ := engine.ClaimProfits(ctx, maker, "MILK")
//
// All monetary calculations use integer arithmetic to avoid
// floating-point precision issues. The Money type represents amounts in
// the smallest currency unit (cents for USD, pence for GBP, etc).
//
// # Custody and Conservation
//
// The engine holds a custodial account on all three ledgers: unsold
// inventory tokens and undistributed sale proceeds sit under
// engine.Address(). Every operation is serialized and all-or-nothing, so
// token and payment conservation hold after every committed transition.
package caravan
