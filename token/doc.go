// Package token implements the two credential kinds of the authentication
// core: short-lived signed JWTs and long-lived opaque refresh tokens.
//
// Signed tokens carry a type discriminator (access, password_reset,
// mfa_challenge) that verification checks against the expected use, so a
// token minted for one purpose can never be replayed for another. Ed25519 is
// the default signing method; verification keys can be distributed by key id
// without exposing signing capability.
//
// Refresh tokens are opaque high-entropy values persisted only as hashes.
// Successive rotations form a family; replaying an already-rotated token
// revokes the whole family (theft detection).
package token
