// Package password hashes and verifies credential passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Length policy is enforced by the engine; this package only rejects empty
// input and inputs above a hard ceiling so verification cost stays bounded.
package password
