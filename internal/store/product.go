package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
)

// ProductStore is the inventory ledger: food items owned by accounts.
type ProductStore struct {
	db DBTX
}

func NewProductStore(db DBTX) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) WithTx(tx *sql.Tx) *ProductStore {
	return &ProductStore{db: tx}
}

func scanProduct(sc scanner) (*model.Product, error) {
	var p model.Product
	var expiry, createdAt string
	if err := sc.Scan(&p.ID, &p.OwnerID, &p.Name, &expiry, &p.Count, &p.Category, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.ExpiryDate, err = parseTime(expiry); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const productCols = `id, owner_id, name, expiry_date, count, category, created_at`

// Insert adds an item to an owner's inventory.
func (s *ProductStore) Insert(ctx context.Context, ownerID int64, name string, count int, category string, expiry time.Time) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO products (owner_id, name, expiry_date, count, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+productCols,
		ownerID, name, formatTime(expiry), count, category, formatTime(time.Now()),
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *ProductStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productCols+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListByOwner returns an owner's inventory, soonest expiry first.
func (s *ProductStore) ListByOwner(ctx context.Context, ownerID int64) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productCols+` FROM products WHERE owner_id = ? ORDER BY expiry_date ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]model.Product, error) {
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// CountByOwner returns the number of inventory rows an owner holds.
func (s *ProductStore) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Update applies the non-nil fields of patch in one statement and returns the
// updated product, or nil if it does not exist.
func (s *ProductStore) Update(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, error) {
	var expiry sql.NullString
	if patch.ExpiryDate != nil {
		expiry = sql.NullString{String: formatTime(*patch.ExpiryDate), Valid: true}
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE products SET
			name = COALESCE(?, name),
			expiry_date = COALESCE(?, expiry_date),
			count = COALESCE(?, count),
			category = COALESCE(?, category),
			expiry_warned = CASE WHEN ? IS NULL THEN expiry_warned ELSE 0 END
		 WHERE id = ?
		 RETURNING `+productCols,
		patch.Name, expiry, patch.Count, patch.Category, expiry, id,
	)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// RemoveOneByName deletes the first item owned by ownerID whose name matches
// (case-insensitive), preferring the soonest expiry. The whole row is
// removed regardless of its count. It returns nil when nothing matches.
func (s *ProductStore) RemoveOneByName(ctx context.Context, ownerID int64, name string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM products WHERE id = (
			SELECT id FROM products
			WHERE owner_id = ? AND name = ? COLLATE NOCASE
			ORDER BY expiry_date ASC, id ASC
			LIMIT 1
		 )
		 RETURNING `+productCols,
		ownerID, name,
	)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remove product %q: %w", name, err)
	}
	return p, nil
}

// ListExpiringUnwarned returns products expiring before the given time that
// have not had an expiry warning yet.
func (s *ProductStore) ListExpiringUnwarned(ctx context.Context, before time.Time) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productCols+` FROM products
		 WHERE expiry_warned = 0 AND expiry_date < ?
		 ORDER BY expiry_date ASC, id ASC`,
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring products: %w", err)
	}
	return collectProducts(rows)
}

func (s *ProductStore) MarkExpiryWarned(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE products SET expiry_warned = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark product warned: %w", err)
	}
	return nil
}
