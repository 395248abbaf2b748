// Package credential implements password hashing and strength validation
// for the authentication core.
//
// Hashing uses Argon2id with a fresh random salt per call and produces a
// self-describing PHC string so parameters can be upgraded over time without
// invalidating stored hashes. Verification is constant time over the digest.
//
// Hashing is CPU-bound by design. Callers on a request-serving path should
// gate concurrent calls (the engine does this with a bounded semaphore) so a
// burst of logins cannot starve the scheduler.
package credential
