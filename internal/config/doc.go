// Package config handles configuration loading for devicefarm-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DEVICEFARM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/devicefarm/gateway.yaml
//  3. ~/.config/devicefarm/gateway.yaml
//
// DEVICEFARM_DB_PATH, when set, overrides database.path.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DEVICEFARM_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Example
//
//	server:
//	  http_addr: "localhost:8080"
//	  request_timeout: "30s"
//	  shutdown_timeout: "15s"
//
//	tailscale:
//	  enabled: false
//
//	database:
//	  path: "/var/lib/devicefarm/gateway.db"
//
//	auth:
//	  jwt_secret: "${DEVICEFARM_JWT_SECRET}"
//	  admin_policy: "any"
//	  admins:
//	    - "server@server.com"
//
//	bus:
//	  buffer_size: 64
//
//	logging:
//	  level: "info"
//	  format: "text"
package config
