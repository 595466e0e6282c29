package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionPartyRegistered  = "party.registered"
	ActionProductCataloged = "product.cataloged"

	// Shipment actions
	ActionShipmentCreated   = "shipment.created"
	ActionShipmentConfirmed = "shipment.confirmed"
	ActionReceiptClaimed    = "receipt.claimed"

	// Marketplace actions
	ActionSale              = "sale.settled"
	ActionProfitsClaimed    = "profits.claimed"
	ActionTokensRedeemed    = "tokens.redeemed"
	ActionStorageFeeClaimed = "storage_fee.claimed"
)

// Resource constants for audit events.
const (
	ResourceParty    = "party"
	ResourceProduct  = "product"
	ResourceShipment = "shipment"
	ResourceSale     = "sale"
	ResourceClaim    = "claim"
)

// Category constants for audit events.
const (
	CategoryRegistry   = "registry"
	CategoryLogistics  = "logistics"
	CategoryCommerce   = "commerce"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
