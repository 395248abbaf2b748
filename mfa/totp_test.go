package mfa

import (
	"strings"
	"testing"
	"time"
)

func testTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:    "authcore-test",
		Digits:    6,
		Period:    30,
		Skew:      1,
		Algorithm: "SHA1",
	}
}

// codeAt computes the code for the step containing ts, offset by step
// periods, so tests can present neighbors deterministically.
func codeAt(t *testing.T, cfg TOTPConfig, secret []byte, ts time.Time, step int64) string {
	t.Helper()
	counter := ts.Unix()/int64(cfg.Period) + step
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func TestVerifyCodeWindowTolerance(t *testing.T) {
	cfg := testTOTPConfig()
	m := newTOTPManager(cfg)
	secret := []byte("12345678901234567890")
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		step int64
		want bool
	}{
		{-2, false},
		{-1, true},
		{0, true},
		{1, true},
		{2, false},
	}

	for _, tc := range tests {
		code := codeAt(t, cfg, secret, now, tc.step)
		got, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode failed at step %d: %v", tc.step, err)
		}
		if got != tc.want {
			t.Fatalf("step %d: expected %v, got %v", tc.step, tc.want, got)
		}
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(testTOTPConfig())
	secret := []byte("12345678901234567890")
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "12a456", "abcdef"} {
		ok, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode(%q) errored: %v", code, err)
		}
		if ok {
			t.Fatalf("VerifyCode(%q) must reject malformed input", code)
		}
	}
}

func TestVerifyCodeRFC6238Vector(t *testing.T) {
	// RFC 6238 appendix B, SHA-1, 8 digits, T=59 → 94287082.
	cfg := TOTPConfig{Digits: 8, Period: 30, Skew: 0, Algorithm: "SHA1"}
	m := newTOTPManager(cfg)
	secret := []byte("12345678901234567890")

	ok, err := m.VerifyCode(secret, "94287082", time.Unix(59, 0))
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if !ok {
		t.Fatal("RFC 6238 test vector must verify")
	}
}

func TestGenerateSecretAndProvisionURI(t *testing.T) {
	m := newTOTPManager(testTOTPConfig())

	raw, b32, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d secret bytes, got %d", totpSecretBytes, len(raw))
	}
	if strings.ContainsAny(b32, "=") {
		t.Fatal("base32 secret must be unpadded")
	}

	uri := m.ProvisionURI(b32, "alice")
	for _, want := range []string{
		"otpauth://totp/",
		"issuer=authcore-test",
		"secret=" + b32,
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, want) {
			t.Fatalf("provisioning URI missing %q: %s", want, uri)
		}
	}
}

func TestBackupCodeShapeAndHashing(t *testing.T) {
	codes, hashes, err := newBackupCodes(10)
	if err != nil {
		t.Fatalf("newBackupCodes failed: %v", err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("expected 10 codes and hashes, got %d/%d", len(codes), len(hashes))
	}

	seen := map[string]bool{}
	for i, code := range codes {
		parts := strings.Split(code, "-")
		if len(parts) != 2 || len(parts[0]) != backupCodeGroupLen || len(parts[1]) != backupCodeGroupLen {
			t.Fatalf("unexpected code shape: %s", code)
		}
		for _, r := range strings.ReplaceAll(code, "-", "") {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %s contains %q outside the alphabet", code, r)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate backup code generated: %s", code)
		}
		seen[code] = true

		if HashBackupCode(code) != hashes[i] {
			t.Fatal("hash must be reproducible from the plaintext code")
		}
	}

	// Normalization: lowercase and separator-free input still matches.
	if HashBackupCode(strings.ToLower(codes[0])) != hashes[0] {
		t.Fatal("hashing must be case-insensitive")
	}
	if HashBackupCode(strings.ReplaceAll(codes[0], "-", "")) != hashes[0] {
		t.Fatal("hashing must ignore the separator")
	}
}
