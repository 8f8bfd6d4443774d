// Package password hashes and verifies principal passwords with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and key segments are written unpadded and read in either form, so
// hashes produced by other argon2 tooling verify here.
//
// The package holds no state beyond its cost parameters and never logs
// plaintext.
package password
