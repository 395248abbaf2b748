// Package mfa implements TOTP multi-factor authentication with one-time
// backup codes.
//
// Per-user state moves Disabled → SetupPending → Enabled. Setup parks the
// fresh secret behind a short-lived opaque setup token; only a correct code
// at confirmation attaches the secret to the user and mints the backup code
// set. Login verification accepts a current TOTP code (±1 time step for
// clock drift) or a backup code, consuming the backup code atomically, and
// reports failures with a single undifferentiated error.
package mfa
