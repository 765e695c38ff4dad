package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/smart-inventory/internal/model"
)

// OrderTx is the set of writes an order placement performs inside one transaction.
type OrderTx interface {
	// LockProducts loads and row-locks the given products. Missing ids are absent from the map.
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
	InsertOrder(ctx context.Context, order *model.Order) error
}

type OrderRepository interface {
	// WithinTx runs fn in a transaction that is committed only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx OrderTx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context) ([]model.Order, error)
	ListByCreator(ctx context.Context, createdBy string) ([]model.Order, error)
	UpdateDetails(ctx context.Context, order *model.Order) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) WithinTx(ctx context.Context, fn func(tx OrderTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgOrderTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgOrderTx struct{ tx pgx.Tx }

func (t *pgOrderTx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products p LEFT JOIN categories c ON c.id = p.category_id
		 WHERE p.id = ANY($1)
		 ORDER BY p.id
		 FOR UPDATE OF p`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*model.Product, len(ids))
	for rows.Next() {
		p := &model.Product{}
		if err := scanProduct(rows, p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (t *pgOrderTx) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE products SET quantity_in_stock = quantity_in_stock - $2, updated_at = NOW()
		 WHERE id = $1 AND quantity_in_stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("insufficient stock for product %s", productID)
	}
	return nil
}

func (t *pgOrderTx) InsertOrder(ctx context.Context, order *model.Order) error {
	order.ID = uuid.New()
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (id, guest_name, guest_email, total_price, created_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.GuestName, order.GuestEmail, order.TotalPrice, order.CreatedDate, order.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		_, err = t.tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4, $5)`,
			order.Items[i].ID, order.Items[i].OrderID, order.Items[i].ProductID,
			order.Items[i].Quantity, order.Items[i].Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, guest_name, guest_email, total_price, created_date, created_by FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.GuestName, &order.GuestEmail, &order.TotalPrice, &order.CreatedDate, &order.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.itemsFor(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *pgOrderRepo) List(ctx context.Context) ([]model.Order, error) {
	return r.listWhere(ctx, `TRUE`)
}

func (r *pgOrderRepo) ListByCreator(ctx context.Context, createdBy string) ([]model.Order, error) {
	return r.listWhere(ctx, `created_by = $1`, createdBy)
}

func (r *pgOrderRepo) listWhere(ctx context.Context, where string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, guest_name, guest_email, total_price, created_date, created_by
		 FROM orders WHERE `+where+` ORDER BY created_date DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []uuid.UUID
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.GuestName, &o.GuestEmail, &o.TotalPrice, &o.CreatedDate, &o.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *pgOrderRepo) itemsFor(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price
		 FROM order_items oi LEFT JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.order_id, oi.id`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	return items, rows.Err()
}

// UpdateDetails stores the guest name, email and item quantities. The total is left untouched.
func (r *pgOrderRepo) UpdateDetails(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE orders SET guest_name = $2, guest_email = $3 WHERE id = $1`,
		order.ID, order.GuestName, order.GuestEmail,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	for _, item := range order.Items {
		if _, err := tx.Exec(ctx,
			`UPDATE order_items SET quantity = $3 WHERE id = $1 AND order_id = $2`,
			item.ID, order.ID, item.Quantity,
		); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *pgOrderRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete order items: %w", err)
	}
	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}
