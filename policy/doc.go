// Package policy implements RBAC decision evaluation over
// (subject, object, action) triples with subject→role grouping edges.
//
// Decisions are cached under a short TTL; the cache is never authoritative
// and every rule mutation strictly invalidates the affected entries before
// returning. Evaluation resolves group memberships transitively up to a
// configured depth.
package policy
