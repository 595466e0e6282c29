// Package mongo provides a MongoDB-backed Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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

// Store is a MongoDB-backed implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to the given MongoDB URI and uses the named database.
func New(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// NewFromDatabase wraps an existing database handle.
func NewFromDatabase(db *mongo.Database) *Store {
	return &Store{db: db}
}

// ──────────────────────────────────────────────────
// Documents
// ──────────────────────────────────────────────────

type moneyDoc struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

func toMoneyDoc(m types.Money) moneyDoc { return moneyDoc{Amount: m.Amount, Currency: m.Currency} }

func (d moneyDoc) toMoney() types.Money {
	return types.Money{Amount: d.Amount, Currency: d.Currency}
}

type manufacturerDoc struct {
	Address   string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type warehouseDoc struct {
	Address         string    `bson:"_id"`
	Name            string    `bson:"name"`
	PhysicalAddress string    `bson:"physical_address"`
	Fees            moneyDoc  `bson:"fees"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

type storefrontDoc struct {
	Address   string    `bson:"_id"`
	Name      string    `bson:"name"`
	Markup    moneyDoc  `bson:"markup"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type productDoc struct {
	ID           int64     `bson:"_id"`
	SKU          string    `bson:"sku"`
	Name         string    `bson:"name"`
	UnitPrice    moneyDoc  `bson:"unit_price"`
	Manufacturer string    `bson:"manufacturer"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type shipmentDoc struct {
	ID        int64     `bson:"_id"`
	ProductID int64     `bson:"product_id"`
	Quantity  int64     `bson:"quantity"`
	From      string    `bson:"from"`
	To        string    `bson:"to"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type claimableDoc struct {
	ProductID int64 `bson:"_id"`
	Quantity  int64 `bson:"quantity"`
}

func (d *productDoc) toProduct() (*catalog.Product, error) {
	maker, err := id.ParseAddress(d.Manufacturer)
	if err != nil {
		return nil, err
	}
	return &catalog.Product{
		Entity:       types.Entity{CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		ID:           catalog.ProductID(d.ID),
		SKU:          d.SKU,
		Name:         d.Name,
		UnitPrice:    d.UnitPrice.toMoney(),
		Manufacturer: maker,
	}, nil
}

func (d *shipmentDoc) toShipment() (*shipment.Shipment, error) {
	from, err := id.ParseAddress(d.From)
	if err != nil {
		return nil, err
	}
	to, err := id.ParseAddress(d.To)
	if err != nil {
		return nil, err
	}
	return &shipment.Shipment{
		Entity:    types.Entity{CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		ID:        shipment.ID(d.ID),
		ProductID: catalog.ProductID(d.ProductID),
		Quantity:  d.Quantity,
		From:      from,
		To:        to,
		Status:    shipment.Status(d.Status),
	}, nil
}

// nextID atomically increments and returns the named dense-id counter.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection("counters").FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// ==================== Party registry ====================

func (s *Store) CreateManufacturer(ctx context.Context, m *party.Manufacturer) error {
	_, err := s.db.Collection("manufacturers").InsertOne(ctx, manufacturerDoc{
		Address:   m.Address.String(),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetManufacturer(ctx context.Context, addr id.Address) (*party.Manufacturer, error) {
	var doc manufacturerDoc
	err := s.db.Collection("manufacturers").FindOne(ctx,
		bson.D{{Key: "_id", Value: addr.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrManufacturerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &party.Manufacturer{
		Entity:  types.Entity{CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt},
		Address: addr,
	}, nil
}

func (s *Store) CreateWarehouse(ctx context.Context, w *party.Warehouse) error {
	_, err := s.db.Collection("warehouses").InsertOne(ctx, warehouseDoc{
		Address:         w.Address.String(),
		Name:            w.Name,
		PhysicalAddress: w.PhysicalAddress,
		Fees:            toMoneyDoc(w.ClaimableFees),
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetWarehouse(ctx context.Context, addr id.Address) (*party.Warehouse, error) {
	var doc warehouseDoc
	err := s.db.Collection("warehouses").FindOne(ctx,
		bson.D{{Key: "_id", Value: addr.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrWarehouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &party.Warehouse{
		Entity:          types.Entity{CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt},
		Address:         addr,
		Name:            doc.Name,
		PhysicalAddress: doc.PhysicalAddress,
		ClaimableFees:   doc.Fees.toMoney(),
	}, nil
}

func (s *Store) CreateStorefront(ctx context.Context, sf *party.Storefront) error {
	_, err := s.db.Collection("storefronts").InsertOne(ctx, storefrontDoc{
		Address:   sf.Address.String(),
		Name:      sf.Name,
		Markup:    toMoneyDoc(sf.Markup),
		CreatedAt: sf.CreatedAt,
		UpdatedAt: sf.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return caravan.ErrAlreadyRegistered
	}
	return err
}

func (s *Store) GetStorefront(ctx context.Context, addr id.Address) (*party.Storefront, error) {
	var doc storefrontDoc
	err := s.db.Collection("storefronts").FindOne(ctx,
		bson.D{{Key: "_id", Value: addr.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrStorefrontNotFound
	}
	if err != nil {
		return nil, err
	}
	return &party.Storefront{
		Entity:  types.Entity{CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt},
		Address: addr,
		Name:    doc.Name,
		Markup:  doc.Markup.toMoney(),
	}, nil
}

// ==================== Catalog ====================

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	// Cheap pre-check keeps the dense counter free of gaps for the
	// common duplicate-sku failure; the unique index still backstops
	// races.
	count, err := s.db.Collection("products").CountDocuments(ctx,
		bson.D{{Key: "sku", Value: p.SKU}})
	if err != nil {
		return err
	}
	if count > 0 {
		return caravan.ErrDuplicateSKU
	}

	next, err := s.nextID(ctx, "products")
	if err != nil {
		return err
	}

	_, err = s.db.Collection("products").InsertOne(ctx, productDoc{
		ID:           next,
		SKU:          p.SKU,
		Name:         p.Name,
		UnitPrice:    toMoneyDoc(p.UnitPrice),
		Manufacturer: p.Manufacturer.String(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return caravan.ErrDuplicateSKU
	}
	if err != nil {
		return err
	}
	p.ID = catalog.ProductID(next)
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID catalog.ProductID) (*catalog.Product, error) {
	var doc productDoc
	err := s.db.Collection("products").FindOne(ctx,
		bson.D{{Key: "_id", Value: int64(productID)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toProduct()
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	var doc productDoc
	err := s.db.Collection("products").FindOne(ctx,
		bson.D{{Key: "sku", Value: sku}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toProduct()
}

func (s *Store) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	cursor, err := s.db.Collection("products").Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []*catalog.Product
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := doc.toProduct()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, cursor.Err()
}

func (s *Store) ListProductIDsByManufacturer(ctx context.Context, addr id.Address) ([]catalog.ProductID, error) {
	cursor, err := s.db.Collection("products").Find(ctx,
		bson.D{{Key: "manufacturer", Value: addr.String()}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []catalog.ProductID
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, catalog.ProductID(doc.ID))
	}
	return ids, cursor.Err()
}

// ==================== Shipments ====================

func (s *Store) CreateShipment(ctx context.Context, sh *shipment.Shipment) error {
	next, err := s.nextID(ctx, "shipments")
	if err != nil {
		return err
	}

	_, err = s.db.Collection("shipments").InsertOne(ctx, shipmentDoc{
		ID:        next,
		ProductID: int64(sh.ProductID),
		Quantity:  sh.Quantity,
		From:      sh.From.String(),
		To:        sh.To.String(),
		Status:    string(sh.Status),
		CreatedAt: sh.CreatedAt,
		UpdatedAt: sh.UpdatedAt,
	})
	if err != nil {
		return err
	}
	sh.ID = shipment.ID(next)
	return nil
}

func (s *Store) GetShipment(ctx context.Context, shipmentID shipment.ID) (*shipment.Shipment, error) {
	var doc shipmentDoc
	err := s.db.Collection("shipments").FindOne(ctx,
		bson.D{{Key: "_id", Value: int64(shipmentID)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, caravan.ErrShipmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toShipment()
}

func (s *Store) AdvanceShipment(ctx context.Context, shipmentID shipment.ID, from, to shipment.Status) error {
	res, err := s.db.Collection("shipments").UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: int64(shipmentID)},
			{Key: "status", Value: string(from)},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(to)},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// The compare-and-swap missed. Read the current status to name why.
	sh, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return advanceConflict(sh.Status, from)
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
	filter := bson.D{}
	if !q.From.IsNil() {
		filter = append(filter, bson.E{Key: "from", Value: q.From.String()})
	}
	if !q.To.IsNil() {
		filter = append(filter, bson.E{Key: "to", Value: q.To.String()})
	}
	if q.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(q.Status)})
	}

	cursor, err := s.db.Collection("shipments").Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []shipment.ID
	for cursor.Next(ctx) {
		var doc shipmentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, shipment.ID(doc.ID))
	}
	return ids, cursor.Err()
}

// ==================== Settlement ====================

func (s *Store) AddClaimable(ctx context.Context, productID catalog.ProductID, qty int64) error {
	_, err := s.db.Collection("claimable").UpdateOne(ctx,
		bson.D{{Key: "_id", Value: int64(productID)}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "quantity", Value: qty}}}},
		options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) Claimable(ctx context.Context, productID catalog.ProductID) (int64, error) {
	var doc claimableDoc
	err := s.db.Collection("claimable").FindOne(ctx,
		bson.D{{Key: "_id", Value: int64(productID)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Quantity, nil
}

func (s *Store) ResetClaimable(ctx context.Context, productID catalog.ProductID) (int64, error) {
	var doc claimableDoc
	err := s.db.Collection("claimable").FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: int64(productID)}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "quantity", Value: int64(0)}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Quantity, nil
}

func (s *Store) AccrueStorageFee(ctx context.Context, warehouse id.Address, fee types.Money) error {
	res, err := s.db.Collection("warehouses").UpdateOne(ctx,
		bson.D{{Key: "_id", Value: warehouse.String()}},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "fees.amount", Value: fee.Amount}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return caravan.ErrWarehouseNotFound
	}
	return nil
}

func (s *Store) WithdrawStorageFees(ctx context.Context, warehouse id.Address) (types.Money, error) {
	var doc warehouseDoc
	err := s.db.Collection("warehouses").FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: warehouse.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "fees.amount", Value: int64(0)},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Money{}, caravan.ErrWarehouseNotFound
	}
	if err != nil {
		return types.Money{}, err
	}
	return doc.Fees.toMoney(), nil
}

// ==================== Core ====================

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection("products").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sku", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate: %w", err)
	}

	_, err = s.db.Collection("products").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "manufacturer", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate: %w", err)
	}

	_, err = s.db.Collection("shipments").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "from", Value: 1}, {Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate: %w", err)
	}

	_, err = s.db.Collection("shipments").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "to", Value: 1}, {Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
