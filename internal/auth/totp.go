package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	TOTPPeriod      = 30
	BackupCodeCount = 10
	backupCodeLen   = 8
	// no 0/O or 1/I
	backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type TOTPKey struct {
	Secret string
	URL    string
}

func GenerateTOTP(issuer, account string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// MatchTOTP checks code against the current step and one step either side.
// It returns the matched time step so callers can reject replays.
func MatchTOTP(secret, code string, now time.Time) (int64, bool) {
	for _, offset := range []int64{0, -1, 1} {
		at := now.Add(time.Duration(offset*TOTPPeriod) * time.Second)
		ok, err := totp.ValidateCustom(code, secret, at, totpOpts)
		if err == nil && ok {
			return at.Unix() / TOTPPeriod, true
		}
	}
	return 0, false
}

// CodeAt returns the TOTP code for secret at t
func CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}

// GenerateBackupCodes returns plaintext codes and their bcrypt hashes
func GenerateBackupCodes() ([]string, []string, error) {
	codes := make([]string, BackupCodeCount)
	hashes := make([]string, BackupCodeCount)
	max := big.NewInt(int64(len(backupAlphabet)))

	for i := range codes {
		buf := make([]byte, backupCodeLen)
		for j := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
			}
			buf[j] = backupAlphabet[n.Int64()]
		}
		codes[i] = string(buf)

		hash, err := bcrypt.GenerateFromPassword(buf, bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes[i] = string(hash)
	}
	return codes, hashes, nil
}

// MatchBackupCode compares a normalized code against a stored hash
func MatchBackupCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
