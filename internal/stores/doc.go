// Package stores contains the GORM-backed implementations of the
// persistence capabilities consumed by the authentication services: refresh
// token families, sessions, session keys, MFA setup tokens and user MFA
// state, the user credential view, and RBAC rules.
//
// Every store takes a *gorm.DB; production wiring uses the Postgres driver,
// tests use an in-memory SQLite database. Transactional invariants (refresh
// rotation, backup-code consumption) live here, behind the interfaces the
// services define.
package stores
