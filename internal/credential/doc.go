// Package credential resolves and checks the secret that unlocks a device.
//
// The application password file wins when it holds a hash; otherwise the
// superuser's system password from passwd/shadow is used. Verification
// always re-hashes the candidate with the stored hash's own algorithm tag and
// salt and compares hashed forms. Hash formats the crypt library cannot
// handle (yescrypt, for instance) fall back to asking su(1) through a pty.
package credential
