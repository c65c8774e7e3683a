package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// MaxUsernameAttempts bounds the numeric suffixes tried for a login name.
const MaxUsernameAttempts = 100

const maxUsernameLength = 150

// UsernameBase derives a login name from an email address: its local part,
// lowercased, restricted to letters, digits and . _ - +.
func UsernameBase(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	if len(base) > maxUsernameLength-4 {
		base = base[:maxUsernameLength-4]
	}
	return base
}

func usernameTaken(tx *gorm.DB, username string) (bool, error) {
	var count int64
	if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(err, "failed to check username")
	}
	return count > 0, nil
}

// pickUsername returns base, or base followed by the first free counter.
func pickUsername(tx *gorm.DB, base string) (string, error) {
	for i := 0; i <= MaxUsernameAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		taken, err := usernameTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkgerrors.Conflict("username", "no free username for this email", pkgerrors.ErrUsernameExhausted)
}

type ownerInput struct {
	Username string
	Email    string
	Name     string
	Phone    string
	// Password is the plaintext credential; empty creates the account
	// without a usable password.
	Password string
}

// createOwner inserts the owning account of tenantID and its profile.
func createOwner(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, in ownerInput) (*models.User, *models.UserProfile, error) {
	password := utils.UnusablePassword()
	if in.Password != "" {
		hashed, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "failed to hash password")
		}
		password = hashed
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: password,
		Name:     truncate(in.Name, 150),
		IsActive: true,
	}
	if err := tx.WithContext(ctx).Create(user).Error; err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, nil, pkgerrors.Conflict("username", "username already taken", pkgerrors.ErrUsernameTaken)
		}
		return nil, nil, pkgerrors.Wrap(err, "failed to create owner account")
	}

	profile := &models.UserProfile{
		UserID:   user.ID,
		TenantID: &tenantID,
		Role:     models.RoleOwner,
		Phone:    in.Phone,
	}
	if err := tx.WithContext(ctx).Create(profile).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(err, "failed to create owner profile")
	}
	user.Profile = profile
	return user, profile, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
