package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shop-service/models"
	"shop-service/repository"
	"shop-service/utils"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByGoogle(ctx context.Context, email string) (*models.User, error)
	FindByFacebook(ctx context.Context, email, facebookID string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	SetPushToken(ctx context.Context, id, token string) error
	SetAdmin(ctx context.Context, id string, admin bool) error
}

type CartReader interface {
	Get(ctx context.Context, userID string) ([]models.CartLine, error)
}

type AuthService struct {
	users    UserStore
	carts    CartReader
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewAuthService(users UserStore, carts CartReader, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:    users,
		carts:    carts,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuthResult is an auth response plus whether a new account was created.
type AuthResult struct {
	models.AuthResponse
	Created bool
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, profileImage string) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, Conflict("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        req.Phone,
		ProfileImage: profileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("Email already registered")
		}
		return nil, err
	}
	return s.respond(u, "User registered successfully!", true, nil)
}

// Login checks the password and returns a token together with the
// user's saved cart.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*AuthResult, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, Unauthorized("Invalid password")
	}

	cart, err := s.carts.Get(ctx, u.ID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load cart at login", "user_id", u.ID, "error", err)
		cart = []models.CartLine{}
	}
	return s.respond(u, "", false, cart)
}

// Google signs in the account linked to the Google email, creating it on
// first use.
func (s *AuthService) Google(ctx context.Context, req models.SocialLoginRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, Validation("Email is required")
	}
	u, err := s.users.FindByGoogle(ctx, email)
	switch {
	case err == nil:
		if req.ProfileImage != "" && req.ProfileImage != u.ProfileImage {
			u.ProfileImage = req.ProfileImage
			if err := s.touch(ctx, u); err != nil {
				return nil, err
			}
		}
		return s.respond(u, "", false, nil)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup google user: %w", err)
	}

	u, err = s.createSocialUser(ctx, req.Name, email, req.ProfileImage, func(u *models.User) { u.GoogleID = email })
	if err != nil {
		return nil, err
	}
	return s.respond(u, "Registered successfully via Google!", true, nil)
}

// Facebook signs in by email or Facebook id, linking the id to an
// existing account that lacks one.
func (s *AuthService) Facebook(ctx context.Context, req models.SocialLoginRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" && req.FacebookID == "" {
		return nil, Validation("Email or Facebook ID is required")
	}
	u, err := s.users.FindByFacebook(ctx, email, req.FacebookID)
	switch {
	case err == nil:
		changed := false
		if req.FacebookID != "" && u.FacebookID == "" {
			u.FacebookID = req.FacebookID
			changed = true
		}
		if req.ProfileImage != "" && req.ProfileImage != u.ProfileImage {
			u.ProfileImage = req.ProfileImage
			changed = true
		}
		if changed {
			if err := s.touch(ctx, u); err != nil {
				return nil, err
			}
		}
		return s.respond(u, "", false, nil)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup facebook user: %w", err)
	}

	u, err = s.createSocialUser(ctx, req.Name, email, req.ProfileImage, func(u *models.User) { u.FacebookID = req.FacebookID })
	if err != nil {
		return nil, err
	}
	return s.respond(u, "Registered successfully via Facebook!", true, nil)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// UpdateProfile changes the non-empty fields of req. profileImage replaces
// the picture when non-empty.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest, profileImage string) (*models.User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if email := normalizeEmail(req.Email); email != "" && email != u.Email {
		other, err := s.users.FindByEmail(ctx, email)
		if err == nil && other.ID != u.ID {
			return nil, Conflict("Email already used by another account")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup email: %w", err)
		}
		u.Email = email
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		u.Name = name
	}
	if req.Phone != "" {
		u.Phone = req.Phone
	}
	if profileImage != "" {
		u.ProfileImage = profileImage
	}
	if err := s.touch(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("Email already used by another account")
		}
		return nil, err
	}
	return u, nil
}

func (s *AuthService) RegisterPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return Validation("Push token is required")
	}
	return s.setPushToken(ctx, userID, token)
}

func (s *AuthService) ClearPushToken(ctx context.Context, userID string) error {
	return s.setPushToken(ctx, userID, "")
}

// EnsureAdmin promotes the account registered under email to admin, or
// creates it with password when it does not exist yet. An existing
// account keeps its password.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, Validation("Admin email is required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.IsAdmin {
			if err := s.users.SetAdmin(ctx, u.ID, true); err != nil {
				return nil, false, fmt.Errorf("promote admin: %w", err)
			}
			u.IsAdmin = true
		}
		return u, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("lookup admin: %w", err)
	}

	if len(password) < 6 {
		return nil, false, Validation("Admin password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = "Admin User"
	}
	now := s.now()
	u = &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return u, true, nil
}

// Authenticate resolves a bearer token to an existing user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return nil, &Error{Kind: KindUnauthorized, Message: "Unauthorized!", Err: err}
	}
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthorized("User no longer exists!")
	}
	if err != nil {
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return u, nil
}

func (s *AuthService) setPushToken(ctx context.Context, userID, token string) error {
	err := s.users.SetPushToken(ctx, userID, token)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("User not found")
	}
	return err
}

func (s *AuthService) createSocialUser(ctx context.Context, name, email, image string, link func(*models.User)) (*models.User, error) {
	now := s.now()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		ProfileImage: image,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	link(u)
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("Email already registered")
		}
		return nil, err
	}
	return u, nil
}

func (s *AuthService) touch(ctx context.Context, u *models.User) error {
	u.UpdatedAt = s.now()
	err := s.users.Update(ctx, u)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("User not found")
	}
	return err
}

func (s *AuthService) respond(u *models.User, message string, created bool, cart []models.CartLine) (*AuthResult, error) {
	token, err := utils.GenerateToken(s.secret, u.ID, s.tokenTTL, s.now())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AuthResponse: models.AuthResponse{
			Message: message,
			User:    u.Response(),
			Token:   token,
			Cart:    cart,
		},
		Created: created,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
