// Package session implements encrypted cookie-backed sessions with sliding
// expiration, key rotation, and CSRF protection.
//
// A session row stores only hashes of the session and CSRF tokens plus the
// AEAD-sealed access token issued at login. Sealing keys rotate; retired
// keys stay resolvable by key id for a grace period so sessions created
// under an old key keep decrypting until the key is purged. Resolution
// re-verifies the inner access token's own signature and expiry, so a
// session row can never outlive the credential it wraps.
package session
