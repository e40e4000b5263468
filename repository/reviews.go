package repository

import (
	"context"
	"fmt"

	"shop-service/models"
)

const reviewColumns = `r.id, r.product_id, r.user_id, r.rating, r.comment, r.image, r.verified, r.created_at, r.updated_at`

type ReviewRepository struct {
	db DBTX
}

func NewReviewRepository(db DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func scanReview(row scanner, extra ...any) (*models.Review, error) {
	var rv models.Review
	dest := []any{&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.Image,
		&rv.Verified, &rv.CreatedAt, &rv.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

func (r *ReviewRepository) Create(ctx context.Context, rv *models.Review) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, product_id, user_id, rating, comment, image, verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rv.ID, rv.ProductID, rv.UserID, rv.Rating, rv.Comment, rv.Image, rv.Verified, rv.CreatedAt, rv.UpdatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *models.Review) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reviews SET rating = ?, comment = ?, image = ?, updated_at = ? WHERE id = ?`,
		rv.Rating, rv.Comment, rv.Image, rv.UpdatedAt, rv.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return affected(res)
}

// FindByID loads a review with the author's name and profile image.
func (r *ReviewRepository) FindByID(ctx context.Context, id string) (*models.Review, error) {
	var name, image string
	rv, err := scanReview(r.db.QueryRowContext(ctx, `
		SELECT `+reviewColumns+`, COALESCE(u.name, ''), COALESCE(u.profile_image, '')
		FROM reviews r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.id = ?`, id), &name, &image)
	if err != nil {
		return nil, err
	}
	rv.User = &models.UserSummary{ID: rv.UserID, Name: name, ProfileImage: image}
	return rv, nil
}

func (r *ReviewRepository) ExistsForUser(ctx context.Context, userID, productID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE user_id = ? AND product_id = ?`, userID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists > 0, nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]models.Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`, COALESCE(u.name, ''), COALESCE(u.profile_image, '')
		FROM reviews r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.product_id = ?
		ORDER BY r.created_at DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var name, image string
		rv, err := scanReview(rows, &name, &image)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.User = &models.UserSummary{ID: rv.UserID, Name: name, ProfileImage: image}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]models.Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`, COALESCE(p.name, ''), COALESCE(p.image, '')
		FROM reviews r LEFT JOIN products p ON p.id = r.product_id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var name, image string
		rv, err := scanReview(rows, &name, &image)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.Product = &models.ReviewProduct{ID: rv.ProductID, Name: name, Image: image}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}
