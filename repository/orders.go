package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/models"
)

const orderColumns = `o.id, o.user_id, o.address, o.city, o.postal_code, o.country, o.phone_number,
	o.payment_method, o.items_price, o.shipping_price, o.discount_price, o.total_price,
	o.promotion_code, o.idempotency_key, o.status, o.delivered_at, o.created_at, o.updated_at`

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(row scanner, extra ...any) (*models.Order, error) {
	var (
		o           models.Order
		promo, idem sql.NullString
		deliveredAt sql.NullTime
	)
	dest := []any{&o.ID, &o.UserID, &o.ShippingAddress.Address, &o.ShippingAddress.City,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country, &o.PhoneNumber,
		&o.PaymentMethod, &o.ItemsPrice, &o.ShippingPrice, &o.DiscountPrice, &o.TotalPrice,
		&promo, &idem, &o.Status, &deliveredAt, &o.CreatedAt, &o.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	o.PromotionCode = promo.String
	o.IdempotencyKey = idem.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	o.Items = []models.OrderItem{}
	return &o, nil
}

// Insert writes the order and its line items. Callers run it inside a
// transaction so the aggregate is stored atomically.
func (r *OrderRepository) Insert(ctx context.Context, o *models.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, address, city, postal_code, country, phone_number,
			payment_method, items_price, shipping_price, discount_price, total_price,
			promotion_code, idempotency_key, status, delivered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.ShippingAddress.Address, o.ShippingAddress.City,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country, o.PhoneNumber,
		o.PaymentMethod, o.ItemsPrice, o.ShippingPrice, o.DiscountPrice, o.TotalPrice,
		nullString(o.PromotionCode), nullString(o.IdempotencyKey), o.Status, o.DeliveredAt,
		o.CreatedAt, o.UpdatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, image, quantity, price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, item.ProductID, item.Name, item.Image, item.Quantity, item.Price); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = ?`, id))
	if err != nil {
		return nil, err
	}
	return o, r.loadItems(ctx, []*models.Order{o})
}

// LockByID is FindByID holding a row lock on the order.
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	return o, r.loadItems(ctx, []*models.Order{o})
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.user_id = ? AND o.idempotency_key = ?`, userID, key))
	if err != nil {
		return nil, err
	}
	return o, r.loadItems(ctx, []*models.Order{o})
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *models.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, delivered_at = ?, updated_at = ? WHERE id = ?`,
		o.Status, o.DeliveredAt, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return affected(res)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.user_id = ? ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.withItems(ctx, orders)
}

// ListAll returns every order, newest first, with the owner's name and email.
func (r *OrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var name, email string
		o, err := scanOrder(rows, &name, &email)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.User = &models.UserSummary{ID: o.UserID, Name: name, Email: email}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.withItems(ctx, orders)
}

// HasPurchased reports whether the user has a shipped or delivered order
// containing the product.
func (r *OrderRepository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = ? AND oi.product_id = ? AND o.status IN (?, ?)
		LIMIT 1`,
		userID, productID, models.OrderStatusShipped, models.OrderStatusDelivered).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) withItems(ctx context.Context, orders []*models.Order) ([]models.Order, error) {
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, image, quantity, price
		FROM order_items WHERE order_id IN (`+placeholders(len(ids))+`)
		ORDER BY id ASC`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    models.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Image, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}
