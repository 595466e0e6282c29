// Package id defines the TypeID-based account address used to identify
// every party that interacts with Caravan.
//
// Manufacturers, warehouses, storefronts, customers and the engine's own
// custodial account all share one address space. Addresses are K-sortable
// (UUIDv7-based), globally unique, and URL-safe in the format
// "acct_suffix". Product and shipment ids are deliberately NOT addresses:
// they are dense integers allocated by the store (see the catalog and
// shipment packages).
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// AddressPrefix is the TypeID prefix shared by all account addresses.
const AddressPrefix = "acct"

// Address identifies a single account: a party or the engine itself.
// The zero value is the nil address and never refers to an account.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type Address struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value Address.
var Nil Address

// NewAddress generates a new globally unique account address.
func NewAddress() Address {
	tid, err := typeid.Generate(AddressPrefix)
	if err != nil {
		panic(fmt.Sprintf("id: generate address: %v", err))
	}

	return Address{inner: tid, valid: true}
}

// ParseAddress parses an address string (e.g.
// "acct_01h2xcejqtf2nbrexx3vqjhp41") and validates its prefix.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse address: empty string")
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse address %q: %w", s, err)
	}

	if tid.Prefix() != AddressPrefix {
		return Nil, fmt.Errorf("id: parse address %q: expected prefix %q, got %q", s, AddressPrefix, tid.Prefix())
	}

	return Address{inner: tid, valid: true}, nil
}

// MustParseAddress is like ParseAddress but panics on error. Use for
// hardcoded address values.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse address %q: %v", s, err))
	}

	return a
}

// String returns the full address string (acct_suffix).
// Returns an empty string for the Nil address.
func (a Address) String() string {
	if !a.valid {
		return ""
	}

	return a.inner.String()
}

// IsNil reports whether this address is the zero value.
func (a Address) IsNil() bool {
	return !a.valid
}

// Equal reports whether two addresses refer to the same account.
func (a Address) Equal(other Address) bool {
	return a == other
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	if !a.valid {
		return []byte{}, nil
	}

	return []byte(a.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Nil

		return nil
	}

	parsed, err := ParseAddress(string(data))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil address so that optional columns store NULL.
func (a Address) Value() (driver.Value, error) {
	if !a.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return a.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (a *Address) Scan(src any) error {
	if src == nil {
		*a = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*a = Nil

			return nil
		}

		return a.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*a = Nil

			return nil
		}

		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into Address", src)
	}
}
