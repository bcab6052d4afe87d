// Package auth provides caller authentication and the admin gate for
// devicefarm-gateway.
//
// # Credentials
//
// Callers present `Authorization: Bearer <value>` where value is either:
//
//   - a JWT signed with HS256 using the configured jwt_secret, carrying
//     {email, name} claims (what the login flow hands to browsers), or
//   - an access-token id issued by the admin API. The id is looked up in
//     the store and the JWT saved alongside it is verified.
//
// HTTPAuthMiddleware resolves either form to an AuthContext and attaches it
// to the request context. The caller's notification group is read from
// their user record, which is created on first contact.
//
// # Admin Gate
//
// Policy decides who may provision credentials for other users:
//
//	static  exact match against auth.admins in the config file
//	roles   admin or owner role in the store (see `devicefarm-gateway bootstrap`)
//	any     either of the above (default)
package auth
