// Package postgres provides a PostgreSQL-backed Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/caravanhq/caravan"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/party"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/store"
	"github.com/caravanhq/caravan/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection to the given database URL.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing database handle.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ==================== Party registry ====================

func (s *Store) CreateManufacturer(ctx context.Context, m *party.Manufacturer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manufacturers (address, created_at, updated_at)
		VALUES ($1, $2, $3)`,
		m.Address, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetManufacturer(ctx context.Context, addr id.Address) (*party.Manufacturer, error) {
	m := &party.Manufacturer{}
	err := s.db.QueryRowContext(ctx, `
		SELECT address, created_at, updated_at
		FROM manufacturers WHERE address = $1`, addr).
		Scan(&m.Address, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrManufacturerNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) CreateWarehouse(ctx context.Context, w *party.Warehouse) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouses (address, name, physical_address, fees_amount, fees_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.Address, w.Name, w.PhysicalAddress,
		w.ClaimableFees.Amount, w.ClaimableFees.Currency,
		w.CreatedAt, w.UpdatedAt)
	if isUniqueViolation(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetWarehouse(ctx context.Context, addr id.Address) (*party.Warehouse, error) {
	w := &party.Warehouse{}
	err := s.db.QueryRowContext(ctx, `
		SELECT address, name, physical_address, fees_amount, fees_currency, created_at, updated_at
		FROM warehouses WHERE address = $1`, addr).
		Scan(&w.Address, &w.Name, &w.PhysicalAddress,
			&w.ClaimableFees.Amount, &w.ClaimableFees.Currency,
			&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrWarehouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Store) CreateStorefront(ctx context.Context, sf *party.Storefront) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storefronts (address, name, markup_amount, markup_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sf.Address, sf.Name, sf.Markup.Amount, sf.Markup.Currency,
		sf.CreatedAt, sf.UpdatedAt)
	if isUniqueViolation(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetStorefront(ctx context.Context, addr id.Address) (*party.Storefront, error) {
	sf := &party.Storefront{}
	err := s.db.QueryRowContext(ctx, `
		SELECT address, name, markup_amount, markup_currency, created_at, updated_at
		FROM storefronts WHERE address = $1`, addr).
		Scan(&sf.Address, &sf.Name, &sf.Markup.Amount, &sf.Markup.Currency,
			&sf.CreatedAt, &sf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrStorefrontNotFound
	}
	if err != nil {
		return nil, err
	}
	return sf, nil
}

// ==================== Catalog ====================

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, price_amount, price_currency, manufacturer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.SKU, p.Name, p.UnitPrice.Amount, p.UnitPrice.Currency,
		p.Manufacturer, p.CreatedAt, p.UpdatedAt).
		Scan(&p.ID)
	if isUniqueViolation(err) {
		return caravan.ErrDuplicateSKU
	}
	return err
}

func scanProduct(scan func(...any) error) (*catalog.Product, error) {
	p := &catalog.Product{}
	err := scan(&p.ID, &p.SKU, &p.Name, &p.UnitPrice.Amount, &p.UnitPrice.Currency,
		&p.Manufacturer, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

const productColumns = `id, sku, name, price_amount, price_currency, manufacturer, created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, productID catalog.ProductID) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrProductNotFound
	}
	return p, err
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrProductNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListProductIDsByManufacturer(ctx context.Context, addr id.Address) ([]catalog.ProductID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM products WHERE manufacturer = $1 ORDER BY id`, addr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []catalog.ProductID
	for rows.Next() {
		var productID catalog.ProductID
		if err := rows.Scan(&productID); err != nil {
			return nil, err
		}
		ids = append(ids, productID)
	}
	return ids, rows.Err()
}

// ==================== Shipments ====================

func (s *Store) CreateShipment(ctx context.Context, sh *shipment.Shipment) error {
	return s.db.QueryRowContext(ctx, `
		INSERT INTO shipments (product_id, quantity, from_address, to_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sh.ProductID, sh.Quantity, sh.From, sh.To, sh.Status,
		sh.CreatedAt, sh.UpdatedAt).
		Scan(&sh.ID)
}

func (s *Store) GetShipment(ctx context.Context, shipmentID shipment.ID) (*shipment.Shipment, error) {
	sh := &shipment.Shipment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, from_address, to_address, status, created_at, updated_at
		FROM shipments WHERE id = $1`, shipmentID).
		Scan(&sh.ID, &sh.ProductID, &sh.Quantity, &sh.From, &sh.To, &sh.Status,
			&sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrShipmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Store) AdvanceShipment(ctx context.Context, shipmentID shipment.ID, from, to shipment.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shipments SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, shipmentID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// The compare-and-swap missed. Read the current status to name why.
	var current shipment.Status
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM shipments WHERE id = $1`, shipmentID).
		Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return caravan.ErrShipmentNotFound
	}
	if err != nil {
		return err
	}
	return advanceConflict(current, from)
}

func advanceConflict(current, expected shipment.Status) error {
	switch expected {
	case shipment.StatusPending:
		return caravan.ErrShipmentNotPending
	case shipment.StatusConfirmed:
		if current == shipment.StatusClaimed {
			return caravan.ErrShipmentAlreadyClaimed
		}
		return caravan.ErrShipmentNotConfirmed
	default:
		return caravan.ErrShipmentNotFound
	}
}

func (s *Store) ListShipmentIDs(ctx context.Context, q shipment.Query) ([]shipment.ID, error) {
	query := `SELECT id FROM shipments WHERE 1=1`
	args := []any{}
	n := 1
	if !q.From.IsNil() {
		query += fmt.Sprintf(` AND from_address = $%d`, n)
		args = append(args, q.From)
		n++
	}
	if !q.To.IsNil() {
		query += fmt.Sprintf(` AND to_address = $%d`, n)
		args = append(args, q.To)
		n++
	}
	if q.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, n)
		args = append(args, q.Status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []shipment.ID
	for rows.Next() {
		var shipmentID shipment.ID
		if err := rows.Scan(&shipmentID); err != nil {
			return nil, err
		}
		ids = append(ids, shipmentID)
	}
	return ids, rows.Err()
}

// ==================== Settlement ====================

func (s *Store) AddClaimable(ctx context.Context, productID catalog.ProductID, qty int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claimable (product_id, quantity) VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET quantity = claimable.quantity + EXCLUDED.quantity`,
		productID, qty)
	return err
}

func (s *Store) Claimable(ctx context.Context, productID catalog.ProductID) (int64, error) {
	var qty int64
	err := s.db.QueryRowContext(ctx,
		`SELECT quantity FROM claimable WHERE product_id = $1`, productID).
		Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *Store) ResetClaimable(ctx context.Context, productID catalog.ProductID) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prior int64
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM claimable WHERE product_id = $1 FOR UPDATE`, productID).
		Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE claimable SET quantity = 0 WHERE product_id = $1`, productID); err != nil {
		return 0, err
	}
	return prior, tx.Commit()
}

func (s *Store) AccrueStorageFee(ctx context.Context, warehouse id.Address, fee types.Money) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE warehouses SET fees_amount = fees_amount + $1, updated_at = NOW()
		WHERE address = $2`,
		fee.Amount, warehouse)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return caravan.ErrWarehouseNotFound
	}
	return nil
}

func (s *Store) WithdrawStorageFees(ctx context.Context, warehouse id.Address) (types.Money, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Money{}, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prior types.Money
	err = tx.QueryRowContext(ctx,
		`SELECT fees_amount, fees_currency FROM warehouses WHERE address = $1 FOR UPDATE`, warehouse).
		Scan(&prior.Amount, &prior.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Money{}, caravan.ErrWarehouseNotFound
	}
	if err != nil {
		return types.Money{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE warehouses SET fees_amount = 0, updated_at = NOW() WHERE address = $1`, warehouse); err != nil {
		return types.Money{}, err
	}
	return prior, tx.Commit()
}

// ==================== Core ====================

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
