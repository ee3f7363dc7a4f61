// Package ipc implements the authentication relay wire format and the named
// pipe endpoints on both sides of it.
//
// A message is a fixed 12-byte header of three little-endian uint32 lengths
// (UserLen, TTYLen, PasswordLen, in that order) followed by three
// NUL-terminated strings in the order terminal, username, password. Lengths
// exclude the terminator. Receivers bound every length before reading the
// body, and a whole message always fits in one atomic pipe write.
package ipc
