package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultIssuer names the platform in authenticator apps.
const DefaultIssuer = "Multisite"

// TOTPService handles two-factor authentication using TOTP.
type TOTPService struct {
	issuer string
	now    func() time.Time
}

// NewTOTPService creates a TOTP service. An empty issuer uses DefaultIssuer.
func NewTOTPService(issuer string) *TOTPService {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TOTPService{issuer: issuer, now: time.Now}
}

// GenerateSecret creates a secret for account and returns it together with
// the otpauth:// URL used to render the enrolment QR code.
func (s *TOTPService) GenerateSecret(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateCode accepts codes of the current period and one period either
// side of it.
func (s *TOTPService) ValidateCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// CodeAt returns the code for secret at t.
func (s *TOTPService) CodeAt(secret string, t time.Time) string {
	code, err := totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return ""
	}
	return code
}
