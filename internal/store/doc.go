// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - User: directory entry keyed by email, created lazily
//   - AccessToken: bearer credential, unique per (email, title)
//   - AdbKey: device-debug public key, fingerprint unique system-wide
//   - Role: administrative grant for an email
//   - AuditEntry: record of an administrative action
//
// # Uniqueness
//
// Concurrency is resolved by the schema rather than by locks in callers:
//
//   - users.email is the primary key; CreateUserIfAbsent inserts with
//     ON CONFLICT DO NOTHING and reports whether it won.
//   - adb_keys.fingerprint is the primary key; a second insert returns
//     ErrDuplicateFingerprint no matter which user attempted it.
//   - access_tokens has PRIMARY KEY (email, title) and a unique id.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The pool is capped at a single connection.
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore with a path under
// t.TempDir() for integration tests with real SQLite.
package store
