// Package admin implements credential and adb key provisioning for device
// farm users.
//
// # Overview
//
// Service exposes four administrator-only operations:
//
//   - CreateAccessToken issues a bearer token for a user
//   - DeleteAccessToken revokes a token by title
//   - AddAdbKey registers an adb public key for a user
//   - RemoveAdbKey revokes a registered key by fingerprint
//
// Users are created lazily on the first token or key issued to them (see
// EnsureUser). The caller is read from the request context populated by
// the auth middleware; the admin decision is delegated to an auth.Policy.
//
// # Errors
//
// Every failure is an *Error tagged with a Kind. The HTTP layer maps kinds
// to responses:
//
//   - KindAuthorization: 401
//   - KindValidation: 400
//   - KindOwnership: 404
//   - KindConflict: 200 with success=false and the holder's email
//   - KindServer: 500
//
// # Key ownership
//
// A fingerprint belongs to at most one user. AddAdbKey inserts first and
// only consults the current holder when the store rejects the fingerprint,
// so concurrent registrations of one key produce exactly one owner.
// Successful inserts and removals are announced through a KeyNotifier on
// the caller's group.
package admin
