package auth

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// DefaultInvitationTTL is how long a credential-setup invitation stays valid.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// MinPasswordLength is the shortest password Accept takes.
const MinPasswordLength = 8

// InvitationService handles the out-of-band credential setup of accounts
// created without a usable password.
type InvitationService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewInvitationService creates an invitation service.
func NewInvitationService(db *gorm.DB, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationService{db: db, ttl: ttl, now: time.Now}
}

// WithTx returns a service whose operations run on tx.
func (s *InvitationService) WithTx(tx *gorm.DB) *InvitationService {
	return &InvitationService{db: tx, ttl: s.ttl, now: s.now}
}

// SetClock replaces the time source.
func (s *InvitationService) SetClock(now func() time.Time) {
	s.now = now
}

// Issue stores a fresh invitation on profile and returns the plaintext
// token. Only its hash is persisted; any previous invitation is replaced.
func (s *InvitationService) Issue(ctx context.Context, profile *models.UserProfile) (string, error) {
	token, err := utils.GenerateRandomToken(32)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to generate invitation token")
	}
	hash := utils.HashToken(token)
	expires := s.now().Add(s.ttl)

	err = s.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"invitation_token_hash":  hash,
			"invitation_expires_at":  expires,
			"invitation_accepted_at": nil,
		}).Error
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to store invitation")
	}

	profile.InvitationTokenHash = &hash
	profile.InvitationExpiresAt = &expires
	profile.InvitationAcceptedAt = nil
	return token, nil
}

// Lookup returns the profile an invitation token belongs to, with its user.
func (s *InvitationService) Lookup(ctx context.Context, token string) (*models.UserProfile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.NotFound("invitation not found", pkgerrors.ErrInvalidToken)
	}

	var profile models.UserProfile
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("invitation_token_hash = ?", utils.HashToken(token)).
		First(&profile).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("invitation not found", pkgerrors.ErrInvalidToken)
		}
		return nil, pkgerrors.Wrap(err, "failed to query invitation")
	}

	if profile.InvitationExpiresAt == nil || !s.now().Before(*profile.InvitationExpiresAt) {
		return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "invitation expired", pkgerrors.ErrTokenExpired)
	}
	return &profile, nil
}

// Accept sets the account's password and spends the invitation.
func (s *InvitationService) Accept(ctx context.Context, token, password string) (*models.User, error) {
	if len(password) < MinPasswordLength {
		return nil, pkgerrors.Validation("password", "password must be at least 8 characters", nil)
	}

	profile, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to hash password")
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", profile.UserID).
			Update("password", hashed).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to set password")
		}
		result := tx.Model(&models.UserProfile{}).
			Where("id = ? AND invitation_token_hash = ?", profile.ID, *profile.InvitationTokenHash).
			Updates(map[string]interface{}{
				"invitation_token_hash":  nil,
				"invitation_expires_at":  nil,
				"invitation_accepted_at": now,
			})
		if result.Error != nil {
			return pkgerrors.Wrap(result.Error, "failed to spend invitation")
		}
		if result.RowsAffected == 0 {
			return pkgerrors.NotFound("invitation not found", pkgerrors.ErrInvalidToken)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoEvent().
		Str("user_id", profile.UserID.String()).
		Msg("Invitation accepted")

	user := profile.User
	if user == nil {
		user = &models.User{ID: profile.UserID}
	}
	user.Password = hashed
	return user, nil
}
