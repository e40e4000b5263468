package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/models"
)

const userColumns = `id, name, email, password_hash, phone, profile_image, google_id, facebook_id, is_admin, push_token, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u                            models.User
		googleID, facebookID, pushTk sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.ProfileImage,
		&googleID, &facebookID, &u.IsAdmin, &pushTk, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	u.GoogleID = googleID.String
	u.FacebookID = facebookID.String
	u.PushToken = pushTk.String
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// FindByGoogle matches either the email or a stored google id.
func (r *UserRepository) FindByGoogle(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? OR google_id = ? LIMIT 1`, email, email))
}

// FindByFacebook matches either the email or the facebook id.
func (r *UserRepository) FindByFacebook(ctx context.Context, email, facebookID string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE (email = ? AND email <> '') OR (facebook_id = ? AND facebook_id <> '') LIMIT 1`,
		email, facebookID))
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.ProfileImage,
		nullString(u.GoogleID), nullString(u.FacebookID), u.IsAdmin, nullString(u.PushToken),
		u.CreatedAt, u.UpdatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes the profile and identity-link fields. The push token is
// managed separately by SetPushToken.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = ?, email = ?, phone = ?, profile_image = ?, google_id = ?, facebook_id = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.Phone, u.ProfileImage, nullString(u.GoogleID), nullString(u.FacebookID), u.UpdatedAt, u.ID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return affected(res)
}

// SetPushToken stores token, or clears it when token is empty.
func (r *UserRepository) SetPushToken(ctx context.Context, id, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET push_token = ? WHERE id = ?`, nullString(token), id)
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	return affected(res)
}

func (r *UserRepository) SetAdmin(ctx context.Context, id string, admin bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, admin, id)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return affected(res)
}

func (r *UserRepository) ListWithPushToken(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE push_token IS NOT NULL AND push_token <> ''`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
