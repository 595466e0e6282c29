// Package sqlite provides a SQLite-backed Store using the pure-Go
// modernc.org/sqlite driver. It suits embedded and single-process use.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

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

// Store is a SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. Pass ":memory:" for an
// in-memory database.
func New(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// The modernc driver does not support concurrent writers on one
	// connection pool.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing database handle.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT,
			sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// ==================== Party registry ====================

func (s *Store) CreateManufacturer(ctx context.Context, m *party.Manufacturer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manufacturers (address, created_at, updated_at)
		VALUES (?, ?, ?)`,
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
		FROM manufacturers WHERE address = ?`, addr).
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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
		FROM warehouses WHERE address = ?`, addr).
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
		VALUES (?, ?, ?, ?, ?, ?)`,
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
		FROM storefronts WHERE address = ?`, addr).
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, price_amount, price_currency, manufacturer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SKU, p.Name, p.UnitPrice.Amount, p.UnitPrice.Currency,
		p.Manufacturer, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return caravan.ErrDuplicateSKU
	}
	if err != nil {
		return err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = catalog.ProductID(rowID)
	return nil
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
		`SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caravan.ErrProductNotFound
	}
	return p, err
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = ?`, sku)
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
		`SELECT id FROM products WHERE manufacturer = ? ORDER BY id`, addr)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (product_id, quantity, from_address, to_address, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sh.ProductID, sh.Quantity, sh.From, sh.To, sh.Status,
		sh.CreatedAt, sh.UpdatedAt)
	if err != nil {
		return err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sh.ID = shipment.ID(rowID)
	return nil
}

func (s *Store) GetShipment(ctx context.Context, shipmentID shipment.ID) (*shipment.Shipment, error) {
	sh := &shipment.Shipment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, from_address, to_address, status, created_at, updated_at
		FROM shipments WHERE id = ?`, shipmentID).
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
		UPDATE shipments SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
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

	var current shipment.Status
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM shipments WHERE id = ?`, shipmentID).
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
	if !q.From.IsNil() {
		query += ` AND from_address = ?`
		args = append(args, q.From)
	}
	if !q.To.IsNil() {
		query += ` AND to_address = ?`
		args = append(args, q.To)
	}
	if q.Status != "" {
		query += ` AND status = ?`
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
		INSERT INTO claimable (product_id, quantity) VALUES (?, ?)
		ON CONFLICT (product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		productID, qty)
	return err
}

func (s *Store) Claimable(ctx context.Context, productID catalog.ProductID) (int64, error) {
	var qty int64
	err := s.db.QueryRowContext(ctx,
		`SELECT quantity FROM claimable WHERE product_id = ?`, productID).
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
		`SELECT quantity FROM claimable WHERE product_id = ?`, productID).
		Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE claimable SET quantity = 0 WHERE product_id = ?`, productID); err != nil {
		return 0, err
	}
	return prior, tx.Commit()
}

func (s *Store) AccrueStorageFee(ctx context.Context, warehouse id.Address, fee types.Money) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE warehouses SET fees_amount = fees_amount + ?, updated_at = CURRENT_TIMESTAMP
		WHERE address = ?`,
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
		`SELECT fees_amount, fees_currency FROM warehouses WHERE address = ?`, warehouse).
		Scan(&prior.Amount, &prior.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Money{}, caravan.ErrWarehouseNotFound
	}
	if err != nil {
		return types.Money{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE warehouses SET fees_amount = 0, updated_at = CURRENT_TIMESTAMP WHERE address = ?`, warehouse); err != nil {
		return types.Money{}, err
	}
	return prior, tx.Commit()
}

// ==================== Core ====================

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
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
