package credential

import (
	"errors"
	"testing"
)

func TestValidateStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantWeak bool
	}{
		{"too short", "a1B!x9", true},
		{"common fragment", "password123456", true},
		{"keyboard walk", "qwertyuiop1234", true},
		{"repeated runs", "aaaaaaaaaaaaaaaa", true},
		{"digits only", "19450812113361", true},
		{"strong passphrase", "plinth-Ravine5-ottoman", false},
		{"long random mixed", "N7#kfQz2!vLm9pXw", false},
		{"long lowercase passphrase", "suspend ivory lantern gravel mosaic", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStrength(tc.password)
			if tc.wantWeak {
				var weak *WeakPasswordError
				if !errors.As(err, &weak) {
					t.Fatalf("expected WeakPasswordError, got %v", err)
				}
				if weak.Reason == "" {
					t.Fatal("expected human-readable reason")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected acceptance, got %v", err)
			}
		})
	}
}
