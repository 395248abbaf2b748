// Package middleware exposes HTTP adapters over the authcore engine:
// authentication (Bearer token first, session cookie fallback), CSRF
// enforcement on mutating verbs, and policy-backed authorization.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to the
// engine and its services.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the engine).
//   - Touch the database or Redis (the engine handles I/O).
//   - Vary error bodies by failure cause; rejections are generic 401/403.
package middleware
