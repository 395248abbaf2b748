// Package authcore is the authentication and session-security core of a
// multi-tenant administrative backend.
//
// It composes five services behind one Engine: password credentials
// (Argon2id hashing, strength validation), tokens (Ed25519-signed access
// tokens, rotating opaque refresh tokens with family-based theft
// detection), TOTP multi-factor authentication with one-time backup codes,
// encrypted cookie sessions with key rotation and CSRF protection, and a
// cached RBAC policy enforcer. Persistence is injected through capability
// interfaces; GORM-backed implementations live in internal/stores.
//
// Build an Engine with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithDB(db).
//		WithRedis(client).
//		WithAuditSink(sink).
//		Build()
//
// The Engine starts a background maintenance loop sweeping expired
// sessions, retired keys, and stale MFA setup tokens; Close stops it.
package authcore
