// Package gateway orchestrates the devicefarm-gateway server components.
//
// # Overview
//
// The gateway owns the SQLite store, the in-process notification bus, the
// admin provisioning service, and the HTTP server. It listens on a plain
// TCP address or, when configured, joins a tailnet through tsnet.
//
// # HTTP API
//
// Every /api/v1 route requires an Authorization: Bearer header carrying a
// signed JWT or an issued access-token id:
//
//   - POST /api/v1/admin/access-tokens - Issue a token ({email})
//   - DELETE /api/v1/admin/access-tokens - Revoke a token ({email, title})
//   - POST /api/v1/admin/adb-keys - Register an adb key ({email, publickey, title?})
//   - DELETE /api/v1/admin/adb-keys - Revoke an adb key ({email, fingerprint})
//   - GET /api/v1/me - Describe the caller
//   - GET /api/v1/events - Server-sent events for the caller's group
//
// Responses are JSON objects with a success flag and, on failure, a message.
// A key already registered to someone else is reported as 200 with
// success=false. A caller without a directory record gets one, with a fresh
// notification group, on its first authenticated request.
//
// The event stream opens with a "subscribed" event naming the group, then
// emits one AdbKeysUpdatedMessage event whenever a key is added or removed
// by a member of that group.
//
// # Health and drain
//
//   - GET /health - Liveness check
//   - GET /health/ready - 503 while draining or when the store is unreachable
//   - POST /admin/drain, POST /admin/undrain - Toggle readiness (admins only)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
