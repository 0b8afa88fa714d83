package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/bellyrush/marketplace/internal/models"
)

// OTP codes are four digits
const (
	otpMin = 1000
	otpMax = 9999
)

// OTPIssuer writes one-time passcodes onto accounts and checks them.
// Persisting the account and mailing the code is up to the caller.
type OTPIssuer struct {
	ttl      time.Duration
	now      func() time.Time
	generate func() (int, error)
}

func NewOTPIssuer(ttl time.Duration) *OTPIssuer {
	return &OTPIssuer{ttl: ttl, now: time.Now, generate: randomCode}
}

func randomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return 0, fmt.Errorf("generate otp: %w", err)
	}
	return otpMin + int(n.Int64()), nil
}

// TTL is how long an issued code stays valid
func (o *OTPIssuer) TTL() time.Duration {
	return o.ttl
}

// Issue replaces any pending code on acct
func (o *OTPIssuer) Issue(acct *models.Account) (int, time.Time, error) {
	code, err := o.generate()
	if err != nil {
		return 0, time.Time{}, err
	}
	expiry := o.now().Add(o.ttl).UTC()
	acct.OTP = &code
	acct.OTPExpiry = &expiry
	return code, expiry, nil
}

// Verify accepts code iff it equals the pending one and has not expired.
// On success the code is cleared and the account marked verified; on
// failure acct is left untouched.
func (o *OTPIssuer) Verify(acct *models.Account, code int) error {
	if acct.OTP == nil || *acct.OTP != code {
		return ErrInvalidCode
	}
	if acct.OTPExpiry == nil || !o.now().Before(*acct.OTPExpiry) {
		return ErrExpired
	}
	acct.OTP = nil
	acct.OTPExpiry = nil
	acct.Verified = true
	return nil
}
