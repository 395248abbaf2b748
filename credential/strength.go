package credential

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 10
	maxPasswordLength = 256

	// Attacker model: offline GPU rig, ~1e10 guesses/second against a fast
	// hash. Argon2id slows this dramatically, but strength is judged against
	// the worst case of a leaked database hashed elsewhere.
	guessesPerSecond = 1e10

	// Minimum acceptable estimated crack time.
	minCrackSeconds = 60 * 60 * 24 * 30
)

// WeakPasswordError carries a human-readable rejection reason suitable for
// client feedback.
type WeakPasswordError struct {
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + e.Reason
}

// Common sequences that collapse effective entropy when present.
var weakSequences = []string{
	"0123456789",
	"abcdefghijklmnopqrstuvwxyz",
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
}

// Frequent passwords and fragments. Matching any of these as a substring
// applies a heavy penalty regardless of surrounding characters.
var commonFragments = []string{
	"password", "passwd", "senha", "letmein", "welcome", "admin",
	"qwerty", "dragon", "monkey", "master", "login", "abc123",
	"iloveyou", "sunshine", "princess", "football", "shadow",
}

// ValidateStrength estimates the crack time of plaintext against an offline
// attacker and rejects passwords below the acceptance threshold.
//
// ValidateStrength returns nil for acceptable passwords and a
// *WeakPasswordError describing the problem otherwise.
func ValidateStrength(plaintext string) error {
	if len(plaintext) < minPasswordLength {
		return &WeakPasswordError{
			Reason: fmt.Sprintf("must be at least %d characters", minPasswordLength),
		}
	}
	if len(plaintext) > maxPasswordLength {
		return &WeakPasswordError{
			Reason: fmt.Sprintf("must be at most %d characters", maxPasswordLength),
		}
	}

	bits := entropyBits(plaintext)

	lower := strings.ToLower(plaintext)
	for _, fragment := range commonFragments {
		if strings.Contains(lower, fragment) {
			bits -= 20
			break
		}
	}
	for _, seq := range weakSequences {
		if containsRun(lower, seq, 4) {
			bits -= 10
			break
		}
	}
	if run := repeatedRun(plaintext); run >= 4 {
		// Repeated characters add length without adding guesses.
		bits -= float64(run-1) * math.Log2(float64(poolSize(plaintext)))
	}

	if bits < 1 {
		bits = 1
	}

	crackSeconds := math.Pow(2, bits-1) / guessesPerSecond
	if crackSeconds < minCrackSeconds {
		return &WeakPasswordError{
			Reason: "too easy to guess; use a longer password with more variety",
		}
	}

	return nil
}

// entropyBits approximates Shannon entropy as length times the log of the
// character pool implied by the classes actually used.
func entropyBits(s string) float64 {
	return float64(len(s)) * math.Log2(float64(poolSize(s)))
}

func poolSize(s string) int {
	var hasLower, hasUpper, hasDigit, hasOther bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasOther = true
		}
	}

	pool := 0
	if hasLower {
		pool += 26
	}
	if hasUpper {
		pool += 26
	}
	if hasDigit {
		pool += 10
	}
	if hasOther {
		pool += 33
	}
	if pool == 0 {
		pool = 1
	}

	return pool
}

// containsRun reports whether s contains any substring of seq (or reversed
// seq) of at least runLen characters.
func containsRun(s, seq string, runLen int) bool {
	for i := 0; i+runLen <= len(seq); i++ {
		run := seq[i : i+runLen]
		if strings.Contains(s, run) || strings.Contains(s, reverse(run)) {
			return true
		}
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// repeatedRun returns the length of the longest run of one repeated rune.
func repeatedRun(s string) int {
	longest, current := 0, 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
		prev = r
	}
	return longest
}
