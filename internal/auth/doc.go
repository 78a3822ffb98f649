// Package auth provides token-based authorisation for the shading API.
//
// The service keeps no user database. Operators and integrations present a
// short-lived HS256 JWT signed with security.jwt.secret; the token names a
// subject and one of three roles (viewer, operator, admin). Roles map to
// permissions through a static table, so checking a request needs no lookup.
//
// Tokens are minted out of band:
//
//	graylogic-shading token -subject knx-gateway -role operator -ttl 1440
package auth
