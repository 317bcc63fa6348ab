package auth

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters shared with every standard authenticator app. Skew of 1
// accepts codes from the neighbouring 30s steps on either side, so a code
// stays redeemable for up to 90s of clock drift. Codes older than that are
// rejected by the validity window itself; no per-code replay ledger is kept.
const (
	totpPeriod     = 30
	totpSkew       = 1
	totpDigits     = otp.DigitsSix
	totpSecretSize = 20
)

// TOTPManager generates device secrets and checks submitted codes.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager sets the issuer label shown in authenticator apps.
func NewTOTPManager(issuer string) *TOTPManager {
	if issuer == "" {
		issuer = "WayFinder"
	}
	return &TOTPManager{issuer: issuer}
}

// GenerateSecret mints a fresh device secret and its otpauth:// URL bound
// to the account email.
func (m *TOTPManager) GenerateSecret(accountEmail string) (secret, provisioningURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountEmail,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ProvisioningURL rebuilds the otpauth:// URL for an existing secret, used
// when setup is retried against an unconfirmed device.
func (m *TOTPManager) ProvisioningURL(secret, accountEmail string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", strconv.Itoa(totpPeriod))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + m.issuer + ":" + accountEmail,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// Verify reports whether code is valid for secret at time t.
func (m *TOTPManager) Verify(secret, code string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
