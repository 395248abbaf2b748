package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// Crockford-style alphabet: no vowels, no easily confused glyphs. Keeps
// codes typo-resistant when read back over the phone.
const backupCodeAlphabet = "23456789BCDFGHJKMNPQRSTVWXZ"

const backupCodeGroupLen = 5

// newBackupCodes generates count plaintext codes of the form XXXXX-XXXXX and
// their storage hashes. The plaintext is returned exactly once.
func newBackupCodes(count int) (codes []string, hashes []string, err error) {
	codes = make([]string, 0, count)
	hashes = make([]string, 0, count)

	for i := 0; i < count; i++ {
		code, err := newBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, HashBackupCode(code))
	}

	return codes, hashes, nil
}

func newBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(2*backupCodeGroupLen + 1)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < 2*backupCodeGroupLen; i++ {
		if i == backupCodeGroupLen {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// HashBackupCode maps a presented code to its storage hash. Codes are
// normalized (uppercased, separator dropped) before hashing so user input
// variations still match.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
