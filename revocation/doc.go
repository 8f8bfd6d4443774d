// Package revocation implements the access token deny-list consulted on
// every authenticated request.
//
// Entry lifetimes are derived from the token's own exp claim so an entry
// disappears exactly when the token could no longer verify. Nothing is
// retained indefinitely: every key is written with a TTL no longer than the
// access token lifetime plus verifier leeway.
package revocation
