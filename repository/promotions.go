package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/models"
)

const promotionColumns = `id, code, discount_percent, expiry_date, active, description, created_at, updated_at`

type PromotionRepository struct {
	db DBTX
}

func NewPromotionRepository(db DBTX) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func scanPromotion(row scanner) (*models.Promotion, error) {
	var (
		p      models.Promotion
		expiry sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Code, &p.DiscountPercent, &expiry, &p.Active,
		&p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if expiry.Valid {
		t := expiry.Time
		p.ExpiryDate = &t
	}
	return &p, nil
}

func (r *PromotionRepository) List(ctx context.Context) ([]models.Promotion, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+promotionColumns+` FROM promotions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	promotions := []models.Promotion{}
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promotions = append(promotions, *p)
	}
	return promotions, rows.Err()
}

func (r *PromotionRepository) FindByID(ctx context.Context, id string) (*models.Promotion, error) {
	return scanPromotion(r.db.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = ?`, id))
}

// FindByCode expects code already normalised to upper case.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	return scanPromotion(r.db.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE code = ?`, code))
}

func (r *PromotionRepository) Create(ctx context.Context, p *models.Promotion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.DiscountPercent, p.ExpiryDate, p.Active, p.Description, p.CreatedAt, p.UpdatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

func (r *PromotionRepository) Update(ctx context.Context, p *models.Promotion) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions
		SET code = ?, discount_percent = ?, expiry_date = ?, active = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		p.Code, p.DiscountPercent, p.ExpiryDate, p.Active, p.Description, p.UpdatedAt, p.ID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	return affected(res)
}

func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM promotions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	return affected(res)
}
