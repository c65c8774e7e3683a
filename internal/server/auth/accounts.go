package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// ErrTOTPRequired is returned by Authenticate when the password matched but
// the account needs a second factor that was not supplied.
var ErrTOTPRequired = pkgerrors.New("two-factor code required")

// AccountService manages platform accounts.
type AccountService struct {
	db   *gorm.DB
	totp *TOTPService
}

// NewAccountService creates an account service.
func NewAccountService(db *gorm.DB, totp *TOTPService) *AccountService {
	if totp == nil {
		totp = NewTOTPService("")
	}
	return &AccountService{db: db, totp: totp}
}

// Authenticate checks a username and password, and the TOTP code for
// accounts that enabled it. Accounts with an unusable password never
// authenticate.
func (s *AccountService) Authenticate(ctx context.Context, username, password, code string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrUnauthorized
		}
		return nil, pkgerrors.Wrap(err, "failed to query user")
	}

	if !user.IsActive || !utils.ComparePassword(user.Password, password) {
		return nil, pkgerrors.ErrUnauthorized
	}

	if user.TwoFactorEnabled {
		if code == "" {
			return nil, ErrTOTPRequired
		}
		if !s.totp.ValidateCode(user.TwoFactorSecret, code) {
			return nil, pkgerrors.ErrUnauthorized
		}
	}

	now := time.Now()
	user.LastLoginAt = &now
	s.db.WithContext(ctx).Model(&user).Update("last_login_at", now)

	return &user, nil
}

// GetUser loads an account with its profile.
func (s *AccountService) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").Where("username = ?", username).First(&user).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to get user")
	}
	return &user, nil
}

// EnsureSuperAdmin creates the bootstrap superadmin if no account with that
// username exists. An existing account is left untouched.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context, username, password string) (*models.User, bool, error) {
	var existing models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !pkgerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(err, "failed to query admin")
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, "failed to hash password")
	}
	user := &models.User{
		Username:     username,
		Password:     hashed,
		Name:         "Administrator",
		IsActive:     true,
		IsSuperAdmin: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, false, pkgerrors.Wrap(err, "failed to create admin")
	}

	logger.InfoEvent().Str("username", username).Msg("Superadmin account created")
	return user, true, nil
}

// EnableTOTP stores a verified secret on the account.
func (s *AccountService) EnableTOTP(ctx context.Context, userID uuid.UUID, secret, code string) error {
	if !s.totp.ValidateCode(secret, code) {
		return pkgerrors.Validation("code", "invalid two-factor code", pkgerrors.ErrInvalidToken)
	}
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_factor_enabled": true,
			"two_factor_secret":  secret,
		}).Error
}

// DisableTOTP removes the second factor from the account.
func (s *AccountService) DisableTOTP(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_factor_enabled": false,
			"two_factor_secret":  "",
		}).Error
}
