package secrets

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPEnrollment is handed to the client when two-factor authentication is
// being set up. The secret is persisted on the user (not yet enabled); the
// URI and QR payload are shown once for the authenticator app.
type TOTPEnrollment struct {
	Secret string // base32 shared secret
	URI    string // otpauth:// provisioning URI
	QRCode string // data:image/png;base64,... rendering of the URI
}

// NewTOTPEnrollment generates a fresh TOTP secret for the given account and
// renders the provisioning QR code.
func NewTOTPEnrollment(issuer, account string) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	img, err := key.Image(200, 200)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TOTPEnrollment{}, err
	}
	return TOTPEnrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// VerifyTOTP checks a six-digit code against the shared secret. A skew of
// one 30-second step either way is tolerated to absorb clock drift; codes
// from further steps are rejected.
func VerifyTOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
