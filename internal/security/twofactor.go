package security

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// VerifyTOTP reports whether code matches the time-based one-time
// output for secret, allowing one step of clock skew either side.
func VerifyTOTP(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})

	if err != nil {
		return false
	}

	return ok
}

// VerifyBackupCode reports whether code matches one of the unused
// backup codes. Pure predicate; the caller is responsible for
// consuming the code.
func VerifyBackupCode(code string, backupCodes []string) bool {
	if code == "" {
		return false
	}

	matched := false

	// compare every entry so timing does not reveal the match position
	for _, c := range backupCodes {
		if subtle.ConstantTimeCompare([]byte(c), []byte(code)) == 1 {
			matched = true
		}
	}

	return matched
}
