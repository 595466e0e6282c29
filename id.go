package caravan

import "github.com/caravanhq/caravan/id"

// Address identifies a party account on the engine and the asset ledgers.
type Address = id.Address

// NewAddress generates a fresh account address.
var NewAddress = id.NewAddress

// ParseAddress parses an account address from its string form.
var ParseAddress = id.ParseAddress
