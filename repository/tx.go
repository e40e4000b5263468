package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"shop-service/models"
)

// Tx is the unit of work over the primary store. Every write that must be
// atomic with another (stock + order, status + outbox, promotion + outbox)
// goes through it.
type Tx interface {
	LockProduct(ctx context.Context, id string) (*models.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, o *models.Order) error
	InsertPromotion(ctx context.Context, p *models.Promotion) error
	AddOutboxEvent(ctx context.Context, ev models.Event) error
}

// Transactor runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newMySQLTx(sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type mysqlTx struct {
	products   *ProductRepository
	orders     *OrderRepository
	promotions *PromotionRepository
	outbox     *OutboxRepository
}

func newMySQLTx(tx *sql.Tx) *mysqlTx {
	return &mysqlTx{
		products:   NewProductRepository(tx),
		orders:     NewOrderRepository(tx),
		promotions: NewPromotionRepository(tx),
		outbox:     NewOutboxRepository(tx),
	}
}

func (t *mysqlTx) LockProduct(ctx context.Context, id string) (*models.Product, error) {
	return t.products.LockByID(ctx, id)
}

func (t *mysqlTx) DecrementStock(ctx context.Context, id string, qty int) error {
	return t.products.DecrementStock(ctx, id, qty)
}

func (t *mysqlTx) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	return t.orders.FindByIdempotencyKey(ctx, userID, key)
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *models.Order) error {
	return t.orders.Insert(ctx, o)
}

func (t *mysqlTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return t.orders.LockByID(ctx, id)
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	return t.orders.UpdateStatus(ctx, o)
}

func (t *mysqlTx) InsertPromotion(ctx context.Context, p *models.Promotion) error {
	return t.promotions.Create(ctx, p)
}

func (t *mysqlTx) AddOutboxEvent(ctx context.Context, ev models.Event) error {
	_, err := t.outbox.Add(ctx, ev)
	return err
}
