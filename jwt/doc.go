// Package jwt issues and verifies the two credential kinds used by authcore:
// short-lived access tokens and long-lived refresh tokens, each signed with
// its own HS256 secret.
package jwt
