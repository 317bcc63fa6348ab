package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// recoveryAlphabet is uppercase alphanumeric without lookalike exclusions;
// codes are machine-checked, not read over the phone.
const (
	recoveryAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	recoveryCodeLen   = 12
	recoveryBatchSize = 10
)

// GenerateRecoveryCodes mints a batch of one-time codes. The plaintext
// goes to the user exactly once; only hashes are stored.
func GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		n = recoveryBatchSize
	}
	codes := make([]string, n)
	buf := make([]byte, recoveryCodeLen)
	for i := range codes {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating recovery code: %w", err)
		}
		out := make([]byte, recoveryCodeLen)
		for j, b := range buf {
			out[j] = recoveryAlphabet[int(b)%len(recoveryAlphabet)]
		}
		codes[i] = string(out)
	}
	return codes, nil
}

// HashRecoveryCode is the stored form of a code: sha256 hex over the
// exact submitted bytes. Codes are case-sensitive.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
