package auth

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
)

// Credentials identify the portal account. They live only in memory.
type Credentials struct {
	Username string
	Password string
	OTPSeed  string // base32 TOTP seed; empty when the account has no 2FA
}

// HasOTP reports whether logins need a one-time code.
func (c Credentials) HasOTP() bool {
	return c.OTPSeed != ""
}

// String keeps secrets out of logs and error messages.
func (c Credentials) String() string {
	otp := "off"
	if c.HasOTP() {
		otp = "on"
	}
	return "user=" + c.Username + " password=*** otp=" + otp
}

// OTPCode returns the TOTP code valid at t.
func (c Credentials) OTPCode(t time.Time) (string, error) {
	if !c.HasOTP() {
		return "", errors.New("[OTPCode] no OTP seed configured")
	}
	code, err := totp.GenerateCode(c.OTPSeed, t)
	if err != nil {
		return "", errors.Wrap(err, "[OTPCode] invalid OTP seed")
	}
	return code, nil
}
