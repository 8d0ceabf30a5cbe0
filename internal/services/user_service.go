package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStorage        = errors.New("storage unavailable")
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Picture *string `json:"picture"`
	Role    *string `json:"role"`
	Status  *string `json:"status"`
}

// UserService owns the directory table and its invariants: unique
// lowercase email, valid role, and coalescing upsert-on-login.
type UserService struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewUserService(db *gorm.DB, timeout time.Duration) *UserService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserService{db: db, timeout: timeout}
}

// withRetry runs fn, and when the users table is missing (fresh
// database, dropped schema) applies the bootstrap and retries exactly
// once.
func (s *UserService) withRetry(fn func() error) error {
	err := fn()
	if isUndefinedTable(err) {
		slog.Warn("users table missing, applying schema bootstrap")
		if merr := s.db.AutoMigrate(&models.User{}); merr != nil {
			return fmt.Errorf("%w: schema bootstrap: %v", ErrStorage, merr)
		}
		err = fn()
	}
	return err
}

func (s *UserService) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// wrapStorage maps low-level failures, context deadline hits included,
// to ErrStorage so handlers answer 503.
func wrapStorage(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) LookupByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var user models.User
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStorage(err)
	}
	return &user, nil
}

func (s *UserService) LookupByID(ctx context.Context, id uint) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var user models.User
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStorage(err)
	}
	return &user, nil
}

// UpsertOnLogin records a successful login as a single atomic
// statement keyed on email. New rows get the derived role; existing
// rows keep their stored role (only an admin edit rebinds it), advance
// last_login/updated_at, and coalesce name/picture/google_id so a
// login never blanks out data the provider omitted this time.
func (s *UserService) UpsertOnLogin(ctx context.Context, identity *Identity, role rolepolicy.Role) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	// Insert default only: an empty provider name must not reach the
	// conflict update, where it would displace the stored display name.
	insertName := identity.Name
	if insertName == "" {
		insertName = strings.Split(email, "@")[0]
	}

	var googleID *string
	if identity.Subject != "" {
		googleID = &identity.Subject
	}

	row := models.User{
		Email:     email,
		Name:      insertName,
		Picture:   identity.Picture,
		GoogleID:  googleID,
		Role:      string(role),
		Status:    "active",
		LastLogin: &now,
	}

	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"name":       gorm.Expr("COALESCE(NULLIF(?, ''), users.name)", identity.Name),
				"picture":    gorm.Expr("COALESCE(NULLIF(?, ''), users.picture)", identity.Picture),
				"google_id":  gorm.Expr("COALESCE(?, users.google_id)", googleID),
				"last_login": now,
				"updated_at": now,
			}),
		}).Create(&row).Error
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	// Re-read for the canonical row: on the conflict path the insert
	// struct does not reflect the stored role or created_at.
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, wrapStorage(err)
	}
	return &user, nil
}

// ListAll returns the directory newest-first.
func (s *UserService) ListAll(ctx context.Context) ([]models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var users []models.User
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return users, nil
}

func (s *UserService) Create(ctx context.Context, name, email, role, status string) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	email = normalizeEmail(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	if role == "" {
		role = string(rolepolicy.RoleUser)
	}
	if !rolepolicy.Valid(rolepolicy.Role(role)) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if status == "" {
		status = "active"
	}
	if status != "active" && status != "inactive" {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	user := models.User{
		Name:   name,
		Email:  email,
		Role:   role,
		Status: status,
	}

	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Create(&user).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, wrapStorage(err)
	}
	return &user, nil
}

func (s *UserService) Update(ctx context.Context, id uint, patch UserPatch) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var user models.User
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStorage(err)
	}

	updates := map[string]interface{}{}
	if patch.Name != nil && *patch.Name != "" {
		updates["name"] = *patch.Name
	}
	if patch.Email != nil && *patch.Email != "" {
		updates["email"] = normalizeEmail(*patch.Email)
	}
	if patch.Picture != nil {
		updates["picture"] = *patch.Picture
	}
	if patch.Role != nil {
		if !rolepolicy.Valid(rolepolicy.Role(*patch.Role)) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *patch.Role)
		}
		updates["role"] = *patch.Role
	}
	if patch.Status != nil {
		if *patch.Status != "active" && *patch.Status != "inactive" {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *patch.Status)
		}
		updates["status"] = *patch.Status
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicateEmail
			}
			return nil, wrapStorage(err)
		}
	}
	return &user, nil
}

func (s *UserService) Delete(ctx context.Context, id uint) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var result *gorm.DB
	err := s.withRetry(func() error {
		result = s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
		return result.Error
	})
	if err != nil {
		return wrapStorage(err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
