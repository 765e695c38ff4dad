package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/smart-inventory/internal/model"
)

// ErrStaleWrite is returned by guarded updates when the row version no longer matches.
var ErrStaleWrite = errors.New("row changed since it was read")

const (
	SortName         = "name"
	SortNameDesc     = "name_desc"
	SortPrice        = "price"
	SortPriceDesc    = "price_desc"
	SortQuantity     = "quantity"
	SortQuantityDesc = "quantity_desc"
)

var productOrderBy = map[string]string{
	SortName:         "p.name ASC",
	SortNameDesc:     "p.name DESC",
	SortPrice:        "p.price ASC",
	SortPriceDesc:    "p.price DESC",
	SortQuantity:     "p.quantity_in_stock ASC",
	SortQuantityDesc: "p.quantity_in_stock DESC",
}

// ValidSort reports whether key is one of the supported product sort keys.
func ValidSort(key string) bool {
	_, ok := productOrderBy[key]
	return ok
}

type ProductFilter struct {
	Search     string
	CategoryID uuid.NullUUID
	Sort       string
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product, version time.Time) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

const productColumns = `p.id, p.name, p.price, p.category_id, COALESCE(c.name, ''),
	p.quantity_in_stock, p.low_stock_threshold, p.created_at, p.updated_at`

func scanProduct(row pgx.Row, p *model.Product) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.CategoryName,
		&p.QuantityInStock, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, price, category_id, quantity_in_stock, low_stock_threshold, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Price, product.CategoryID,
		product.QuantityInStock, product.LowStockThreshold,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT ` + productColumns + `
			  FROM products p LEFT JOIN categories c ON c.id = p.category_id
			  WHERE p.id = $1`
	p := &model.Product{}
	if err := scanProduct(r.pool.QueryRow(ctx, query, id), p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product: %w", err)
	}
	return exists, nil
}

func (r *pgProductRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	orderBy, ok := productOrderBy[filter.Sort]
	if !ok {
		orderBy = productOrderBy[SortName]
	}

	query := fmt.Sprintf(`SELECT %s
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE ($1::text = '' OR p.name ILIKE '%%' || $1 || '%%')
		  AND ($2::uuid IS NULL OR p.category_id = $2)
		ORDER BY %s, p.id`, productColumns, orderBy)

	rows, err := r.pool.Query(ctx, query, filter.Search, filter.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Update writes the product only if updated_at still equals version.
func (r *pgProductRepo) Update(ctx context.Context, product *model.Product, version time.Time) error {
	query := `UPDATE products
			  SET name = $2, price = $3, category_id = $4, quantity_in_stock = $5, low_stock_threshold = $6, updated_at = NOW()
			  WHERE id = $1 AND updated_at = $7
			  RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Price, product.CategoryID,
		product.QuantityInStock, product.LowStockThreshold, version,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleWrite
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
